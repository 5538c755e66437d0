package normalize

import (
	"fmt"
	"html"
	"net/url"
	"strings"
)

// Transform names a corpus rewrite applied before pattern matching.
type Transform string

const (
	TransformLowercase  Transform = "lowercase"
	TransformHTMLEntity Transform = "html_entity"
	TransformURLDecode  Transform = "url_decode"
)

const defaultDecodeDepth = 2

type Options struct {
	MaxDecodeDepth int
	Lowercase      bool
	HTMLEntity     bool
}

type Result struct {
	Raw        string
	Normalized string
}

// ParseTransforms maps configured transform names onto Options.
func ParseTransforms(raw []string) (Options, error) {
	var opts Options
	for _, item := range raw {
		switch Transform(strings.TrimSpace(item)) {
		case TransformLowercase:
			opts.Lowercase = true
		case TransformHTMLEntity:
			opts.HTMLEntity = true
		case TransformURLDecode:
			opts.MaxDecodeDepth = defaultDecodeDepth
		default:
			return Options{}, fmt.Errorf("unknown transform %q", item)
		}
	}
	return opts, nil
}

// IsZero reports whether Apply would return its input unchanged.
func (o Options) IsZero() bool {
	return o.MaxDecodeDepth <= 0 && !o.Lowercase && !o.HTMLEntity
}

func Apply(input string, opts Options) Result {
	res := Result{Raw: input, Normalized: input}

	decoded := res.Normalized
	for i := 0; i < opts.MaxDecodeDepth; i++ {
		next, ok := decodeOnce(decoded)
		if !ok || next == decoded {
			break
		}
		decoded = next
	}

	res.Normalized = decoded

	if opts.HTMLEntity {
		res.Normalized = html.UnescapeString(res.Normalized)
	}
	if opts.Lowercase {
		res.Normalized = strings.ToLower(res.Normalized)
	}

	return res
}

func decodeOnce(input string) (string, bool) {
	decoded, err := url.PathUnescape(input)
	if err != nil {
		return input, false
	}
	return decoded, true
}
