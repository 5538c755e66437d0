package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/klyr/promptguard/internal/guardrail"
	"github.com/klyr/promptguard/internal/guardrail/builtin"
	"github.com/klyr/promptguard/internal/normalize"
)

type ValidationError struct {
	Problems []string
}

func (v *ValidationError) Add(format string, args ...any) {
	v.Problems = append(v.Problems, fmt.Sprintf(format, args...))
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%d validation error(s)", len(v.Problems))
}

func (c *Config) Validate() error {
	v := &ValidationError{}

	if c.ConfigVersion != 1 {
		v.Add("configVersion must be 1")
	}

	if err := validateListen(c.Server.Listen); err != nil {
		v.Add("server.listen invalid: %v", err)
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			v.Add("server.tls.certFile required when tls.enabled is true")
		}
		if c.Server.TLS.KeyFile == "" {
			v.Add("server.tls.keyFile required when tls.enabled is true")
		}
		if c.Server.TLS.CertFile != "" {
			if err := requireFile(c.resolvePath(c.Server.TLS.CertFile)); err != nil {
				v.Add("server.tls.certFile invalid: %v", err)
			}
		}
		if c.Server.TLS.KeyFile != "" {
			if err := requireFile(c.resolvePath(c.Server.TLS.KeyFile)); err != nil {
				v.Add("server.tls.keyFile invalid: %v", err)
			}
		}
	}

	if c.Server.APIProfile != "" {
		if _, ok := c.Profiles[c.Server.APIProfile]; !ok {
			v.Add("server.apiProfile %q does not exist", c.Server.APIProfile)
		}
	}

	if c.Metrics.Enabled {
		if err := validateListen(c.Metrics.Listen); err != nil {
			v.Add("metrics.listen invalid: %v", err)
		}
	}

	if c.Tracing.Enabled {
		if strings.TrimSpace(c.Tracing.Endpoint) == "" {
			v.Add("tracing.endpoint required when tracing.enabled is true")
		}
		switch strings.ToLower(c.Tracing.Protocol) {
		case "", "grpc", "http":
		default:
			v.Add("tracing.protocol must be grpc|http")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		v.Add("logging.level must be debug|info|warn|error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		v.Add("logging.format must be text|json")
	}

	upstreamNames := map[string]struct{}{}
	for i, upstream := range c.Upstreams {
		if upstream.Name == "" {
			v.Add("upstreams[%d].name is required", i)
		} else if _, exists := upstreamNames[upstream.Name]; exists {
			v.Add("upstreams[%d].name %q is duplicated", i, upstream.Name)
		} else {
			upstreamNames[upstream.Name] = struct{}{}
		}

		if upstream.URL == "" {
			v.Add("upstreams[%d].url is required", i)
		} else if err := validateURL(upstream.URL); err != nil {
			v.Add("upstreams[%d].url invalid: %v", i, err)
		}
	}

	detectorNames := map[string]struct{}{}
	for i, d := range c.Detectors {
		if d.Name == "" {
			v.Add("detectors[%d].name is required", i)
		} else if _, exists := detectorNames[d.Name]; exists {
			v.Add("detectors[%d].name %q is duplicated", i, d.Name)
		} else {
			detectorNames[d.Name] = struct{}{}
		}
		c.validateDetector(v, i, d)
	}

	for name, profile := range c.Profiles {
		if name == "" {
			v.Add("profiles has an empty name")
			continue
		}

		switch profile.Mode {
		case ModeEnforce, ModeShadow:
		default:
			v.Add("profiles.%s.mode must be enforce|shadow", name)
		}

		if err := validateInputType(profile.InputType, true); err != nil {
			v.Add("profiles.%s.inputType %v", name, err)
		}

		if len(profile.Detectors) == 0 {
			v.Add("profiles.%s.detectors must not be empty", name)
		}
		seen := map[string]struct{}{}
		for _, ref := range profile.Detectors {
			if _, dup := seen[ref]; dup {
				v.Add("profiles.%s.detectors %q is duplicated", name, ref)
				continue
			}
			seen[ref] = struct{}{}
			if _, declared := detectorNames[ref]; declared {
				continue
			}
			if _, ok := builtin.Spec(ref); !ok {
				v.Add("profiles.%s.detectors %q does not exist", name, ref)
			}
		}

		if profile.Limits.MaxBodyBytes <= 0 {
			v.Add("profiles.%s.limits.maxBodyBytes must be > 0", name)
		}
		if profile.Limits.MaxInputBytes <= 0 {
			v.Add("profiles.%s.limits.maxInputBytes must be > 0", name)
		}
		if profile.Limits.Timeout <= 0 {
			v.Add("profiles.%s.limits.timeout must be > 0", name)
		}

		if code := profile.Actions.BlockStatusCode; code != 0 && (code < 400 || code > 599) {
			v.Add("profiles.%s.actions.blockStatusCode must be a 4xx or 5xx status", name)
		}
	}

	for i, route := range c.Routes {
		if route.Match.PathPrefix == "" {
			v.Add("routes[%d].match.pathPrefix is required", i)
		}
		if route.Upstream == "" {
			v.Add("routes[%d].upstream is required", i)
		} else if _, exists := upstreamNames[route.Upstream]; !exists {
			v.Add("routes[%d].upstream %q does not exist", i, route.Upstream)
		}
		if route.Profile == "" {
			v.Add("routes[%d].profile is required", i)
		} else if _, exists := c.Profiles[route.Profile]; !exists {
			v.Add("routes[%d].profile %q does not exist", i, route.Profile)
		}
	}

	if len(v.Problems) > 0 {
		sort.Strings(v.Problems)
		return v
	}
	return nil
}

func (c *Config) validateDetector(v *ValidationError, i int, d Detector) {
	if d.Builtin != "" {
		if _, ok := builtin.Spec(d.Builtin); !ok {
			v.Add("detectors[%d].builtin %q is unknown (known: %s)", i, d.Builtin, strings.Join(builtin.Names(), ", "))
		}
	} else {
		if d.Category == "" {
			v.Add("detectors[%d].category is required without builtin", i)
		}
		if len(d.Patterns) == 0 && d.KeywordsFile == "" {
			v.Add("detectors[%d] needs patterns or keywordsFile", i)
		}
	}

	if _, err := normalize.ParseTransforms(d.Transforms); err != nil {
		v.Add("detectors[%d].transforms invalid: %v", i, err)
	}
	for _, typ := range d.InputTypes {
		if err := validateInputType(typ, false); err != nil {
			v.Add("detectors[%d].inputTypes %v", i, err)
		}
	}

	if d.KeywordsFile != "" {
		if err := requireFile(c.resolvePath(d.KeywordsFile)); err != nil {
			v.Add("detectors[%d].keywordsFile invalid: %v", i, err)
		}
		if d.Reason == "" {
			v.Add("detectors[%d].reason is required with keywordsFile", i)
		}
	}

	for j, p := range d.Patterns {
		if p.Name == "" {
			v.Add("detectors[%d].patterns[%d].name is required", i, j)
		}
		if p.Reason == "" {
			v.Add("detectors[%d].patterns[%d].reason is required", i, j)
		}
		if p.Pattern == "" {
			v.Add("detectors[%d].patterns[%d].pattern is required", i, j)
		} else if re, err := regexp.Compile(p.Pattern); err != nil {
			v.Add("detectors[%d].patterns[%d].pattern invalid: %v", i, j, err)
		} else if re.MatchString("") {
			v.Add("detectors[%d].patterns[%d].pattern must not match empty text", i, j)
		}

		switch guardrail.Trigger(p.Trigger) {
		case "", guardrail.TriggerExistence:
			if p.Threshold != 0 {
				v.Add("detectors[%d].patterns[%d].threshold only applies to count triggers", i, j)
			}
		case guardrail.TriggerCount:
			if p.Threshold <= 0 {
				v.Add("detectors[%d].patterns[%d].threshold must be > 0 for count triggers", i, j)
			}
		default:
			v.Add("detectors[%d].patterns[%d].trigger must be existence|count", i, j)
		}
	}
}

func validateInputType(typ string, allowEmpty bool) error {
	switch typ {
	case guardrail.InputTypeRequest, guardrail.InputTypeResponse:
		return nil
	case "":
		if allowEmpty {
			return nil
		}
	}
	return fmt.Errorf("must be %s|%s, got %q", guardrail.InputTypeRequest, guardrail.InputTypeResponse, typ)
}

func validateListen(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("address is required")
	}
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return err
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("must include scheme and host")
	}
	return nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
