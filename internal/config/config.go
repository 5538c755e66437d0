package config

import "time"

type Config struct {
	ConfigVersion int                `yaml:"configVersion"`
	Server        ServerConfig       `yaml:"server"`
	Upstreams     []Upstream         `yaml:"upstreams"`
	Routes        []Route            `yaml:"routes"`
	Profiles      map[string]Profile `yaml:"profiles"`
	Detectors     []Detector         `yaml:"detectors"`
	Logging       LoggingConfig      `yaml:"logging"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Tracing       TracingConfig      `yaml:"tracing"`

	baseDir string `yaml:"-"`
}

type ServerConfig struct {
	Listen string    `yaml:"listen"`
	TLS    TLSConfig `yaml:"tls"`
	// APIProfile enables POST /v1/guardrails/evaluate against this profile.
	APIProfile string `yaml:"apiProfile"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

type Upstream struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Route struct {
	Match    RouteMatch `yaml:"match"`
	Upstream string     `yaml:"upstream"`
	Profile  string     `yaml:"profile"`
}

type RouteMatch struct {
	Host       string `yaml:"host"`
	PathPrefix string `yaml:"pathPrefix"`
}

// Profile is an ordered detector list plus the limits and action applied
// when it runs.
type Profile struct {
	Mode      string            `yaml:"mode"`
	InputType string            `yaml:"inputType"`
	Detectors []string          `yaml:"detectors"`
	Limits    Limits            `yaml:"limits"`
	Actions   ProfileActionSpec `yaml:"actions"`
}

type Limits struct {
	MaxBodyBytes  int64         `yaml:"maxBodyBytes"`
	MaxInputBytes int64         `yaml:"maxInputBytes"`
	Timeout       time.Duration `yaml:"timeout"`
}

type ProfileActionSpec struct {
	BlockStatusCode int `yaml:"blockStatusCode"`
}

// Detector declares a pattern detector. Builtin seeds it from a shipped
// table; Patterns and KeywordsFile are appended after the builtin patterns.
type Detector struct {
	Name         string    `yaml:"name"`
	Builtin      string    `yaml:"builtin"`
	Category     string    `yaml:"category"`
	InputTypes   []string  `yaml:"inputTypes"`
	Transforms   []string  `yaml:"transforms"`
	Patterns     []Pattern `yaml:"patterns"`
	KeywordsFile string    `yaml:"keywordsFile"`
	Reason       string    `yaml:"reason"`
}

type Pattern struct {
	Name      string `yaml:"name"`
	Pattern   string `yaml:"pattern"`
	Trigger   string `yaml:"trigger"`
	Threshold int    `yaml:"threshold"`
	Reason    string `yaml:"reason"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	DecisionLog string `yaml:"decisionLog"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"`
}

const (
	ModeEnforce = "enforce"
	ModeShadow  = "shadow"
)

func (c *Config) BaseDir() string {
	return c.baseDir
}

func (c *Config) ResolvePath(path string) string {
	return c.resolvePath(path)
}

// Detector looks up a declared detector by name.
func (c *Config) Detector(name string) (Detector, bool) {
	for _, d := range c.Detectors {
		if d.Name == name {
			return d, true
		}
	}
	return Detector{}, false
}
