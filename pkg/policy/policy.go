package policy

import (
	kardianos "github.com/kardianos/service"
)

// ServicePolicy describes how the OS service manager should supervise the agent.
type ServicePolicy struct {
	Options      kardianos.KeyValue
	Dependencies []string
}

// ForOS returns the auto-start and restart policy for goos. Unknown systems
// get an empty policy and rely on kardianos defaults.
func ForOS(goos string) ServicePolicy {
	switch goos {
	case "linux":
		return ServicePolicy{
			Options: kardianos.KeyValue{
				"Restart":     "always",
				"LimitNOFILE": 65536,
			},
			Dependencies: []string{
				"After=network-online.target",
				"Wants=network-online.target",
			},
		}
	case "darwin":
		return ServicePolicy{
			Options: kardianos.KeyValue{
				"KeepAlive": true,
				"RunAtLoad": true,
			},
		}
	case "windows":
		return ServicePolicy{
			Options: kardianos.KeyValue{
				"StartType":              "automatic",
				"OnFailure":              "restart",
				"OnFailureDelayDuration": "5s",
				"OnFailureResetPeriod":   86400,
			},
		}
	default:
		return ServicePolicy{Options: kardianos.KeyValue{}}
	}
}

// Apply copies the policy onto a kardianos service config.
func (p ServicePolicy) Apply(cfg *kardianos.Config) {
	if cfg.Option == nil {
		cfg.Option = kardianos.KeyValue{}
	}
	for k, v := range p.Options {
		cfg.Option[k] = v
	}
	cfg.Dependencies = append(cfg.Dependencies, p.Dependencies...)
}
