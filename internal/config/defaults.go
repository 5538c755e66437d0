package config

import (
	"time"

	"github.com/klyr/promptguard/internal/guardrail"
	"github.com/klyr/promptguard/internal/guardrail/builtin"
)

const (
	DefaultProfile       = "default"
	defaultMaxBodyBytes  = 1 << 20
	defaultMaxInputBytes = 64 << 10
	defaultTimeout       = 30 * time.Second
)

// Default returns a config that runs every builtin detector in enforce mode.
// It is used when no config file is given to the check command.
func Default() *Config {
	return &Config{
		ConfigVersion: 1,
		Server:        ServerConfig{Listen: ":8080", APIProfile: DefaultProfile},
		Profiles: map[string]Profile{
			DefaultProfile: {
				Mode:      ModeEnforce,
				InputType: guardrail.InputTypeRequest,
				Detectors: builtin.Names(),
				Limits: Limits{
					MaxBodyBytes:  defaultMaxBodyBytes,
					MaxInputBytes: defaultMaxInputBytes,
					Timeout:       defaultTimeout,
				},
			},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
