package config

import "time"

// Profile carries the per-environment operational knobs. Everything that
// changes between dev, staging and prod lives here so the rest of the code
// reads one struct instead of sniffing env vars.
type Profile struct {
	Name                  string
	Debug                 bool
	CORSOrigins           []string
	CacheTTL              time.Duration
	RateLimitPerMin       int
	MaxRetries            int
	BreakerThreshold      int
	RequestTimeout        time.Duration
	LogLevel              string
	EnableInputModeration bool
}

// ProfileFor resolves an environment name to its profile. Unknown names fall
// back to dev.
func ProfileFor(env string) Profile {
	switch env {
	case "prod", "production":
		return Profile{
			Name:                  "prod",
			Debug:                 false,
			CORSOrigins:           []string{},
			CacheTTL:              3600 * time.Second,
			RateLimitPerMin:       30,
			MaxRetries:            2,
			BreakerThreshold:      2,
			RequestTimeout:        15 * time.Second,
			LogLevel:              "WARNING",
			EnableInputModeration: true,
		}
	case "staging":
		return Profile{
			Name:                  "staging",
			Debug:                 false,
			CORSOrigins:           []string{},
			CacheTTL:              1800 * time.Second,
			RateLimitPerMin:       50,
			MaxRetries:            2,
			BreakerThreshold:      3,
			RequestTimeout:        20 * time.Second,
			LogLevel:              "INFO",
			EnableInputModeration: true,
		}
	default:
		return Profile{
			Name:  "dev",
			Debug: true,
			CORSOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:5173",
			},
			CacheTTL:              300 * time.Second,
			RateLimitPerMin:       100,
			MaxRetries:            3,
			BreakerThreshold:      5,
			RequestTimeout:        30 * time.Second,
			LogLevel:              "DEBUG",
			EnableInputModeration: false,
		}
	}
}
