package config

import "time"

// Config is the full on-disk configuration.
//
// Files may be YAML or JSON; YAML is coerced to JSON before strict decoding so
// unknown keys are rejected in both formats.
//
// All duration values are Go duration strings (e.g. "500ms", "30s", "5m").
type Config struct {
	GitHub  GitHubConfig  `json:"github"`
	Poll    PollConfig    `json:"poll"`
	Notify  NotifyConfig  `json:"notify"`
	Logging LoggingConfig `json:"logging"`
	Debug   DebugConfig   `json:"debug,omitempty"`
}

// GitHubConfig identifies the notifications feed and its credential.
//
// The token is resolved in order: Token, contents of TokenFile, then the
// GITHUB_TOKEN environment variable. There is no refresh or rotation; an
// expired token stops the daemon with a fatal error.
type GitHubConfig struct {
	Token     string `json:"token,omitempty"`
	TokenFile string `json:"token_file,omitempty"`

	// APIURL defaults to "https://api.github.com/notifications".
	// Override for GitHub Enterprise.
	APIURL    string `json:"api_url,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	// RequestTimeout bounds a single HTTP request. Default "30s".
	RequestTimeout string `json:"request_timeout,omitempty"`
}

// PollConfig controls poll cadence and failure backoff.
//
// Interval is the normal cadence (default "30s"). Schedule, when set, is a
// standard cron expression that replaces the fixed interval for the normal
// cadence. Server rate-limit waits and failure backoff always take precedence
// over either.
type PollConfig struct {
	Interval string `json:"interval,omitempty"`
	Schedule string `json:"schedule,omitempty"`

	// BackoffMax caps the exponential backoff after consecutive transient
	// failures. Default "5m".
	BackoffMax string `json:"backoff_max,omitempty"`
}

// NotifyConfig controls the desktop notification payloads.
type NotifyConfig struct {
	// AppName is reported to the notification server. Default "ghnotifyd".
	AppName string `json:"app_name,omitempty"`
	// Icon is a themed icon name or an absolute path.
	Icon string `json:"icon,omitempty"`
	// ExpireTimeout is how long a notification stays on screen
	// ("0s" lets the server decide).
	ExpireTimeout string `json:"expire_timeout,omitempty"`
	// OpenCommand opens activated links. Default "xdg-open".
	OpenCommand string `json:"open_command,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Journal LoggingJournal `json:"journal"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingJournal struct {
	Enabled  bool   `json:"enabled"`
	MinLevel string `json:"min_level,omitempty"`
}

// DebugConfig controls the optional pprof/metrics HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// Durations is the parsed, defaulted view of the duration-string fields.
type Durations struct {
	Interval       time.Duration
	BackoffMax     time.Duration
	RequestTimeout time.Duration
	ExpireTimeout  time.Duration
}

// ParseDurations validates all duration-string fields at once so a bad config
// fails at startup rather than mid-loop.
func (c *Config) ParseDurations() (Durations, error) {
	var d Durations
	var err error
	if d.Interval, err = ParseDurationOrDefault("poll.interval", c.Poll.Interval, 30*time.Second); err != nil {
		return d, err
	}
	if d.BackoffMax, err = ParseDurationOrDefault("poll.backoff_max", c.Poll.BackoffMax, 5*time.Minute); err != nil {
		return d, err
	}
	if d.RequestTimeout, err = ParseDurationOrDefault("github.request_timeout", c.GitHub.RequestTimeout, 30*time.Second); err != nil {
		return d, err
	}
	if d.ExpireTimeout, err = ParseDurationField("notify.expire_timeout", c.Notify.ExpireTimeout); err != nil {
		return d, err
	}
	return d, nil
}
