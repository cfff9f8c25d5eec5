package config

// RateLimit bounds the request rate accepted from a single RPC client.
type RateLimit struct {
	RequestsPerMinute int `toml:"RequestsPerMinute" yaml:"requestsPerMinute"`
	Burst             int `toml:"Burst" yaml:"burst"`
}

// Log controls structured logging and the optional rotated log file.
type Log struct {
	Env        string `toml:"Env" yaml:"env"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"maxAgeDays"`
}

// Farm names the two assets the farm moves and the default reward period.
type Farm struct {
	StakedAsset string `toml:"StakedAsset" yaml:"stakedAsset"`
	RewardAsset string `toml:"RewardAsset" yaml:"rewardAsset"`
	// DefaultDuration is the reward period, in seconds, applied when a
	// notification does not carry one.
	DefaultDuration uint64 `toml:"DefaultDuration" yaml:"defaultDuration"`
	Paused          bool   `toml:"Paused" yaml:"paused"`
}

// Telemetry configures OTLP/HTTP export of traces and metrics. Nothing is
// exported unless Traces or Metrics is set.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	// Headers is a comma separated key=value list sent with every export.
	Headers string `toml:"Headers" yaml:"headers"`
	Traces  bool   `toml:"Traces" yaml:"traces"`
	Metrics bool   `toml:"Metrics" yaml:"metrics"`
}

// AccountAuth configures the HMAC signed JWTs that name the account an
// account-mutating RPC acts for. The token subject must equal the caller.
type AccountAuth struct {
	HMACSecret    string `toml:"HMACSecret" yaml:"hmacSecret"`
	HMACSecretEnv string `toml:"HMACSecretEnv" yaml:"hmacSecretEnv"`
	Issuer        string `toml:"Issuer" yaml:"issuer"`
	Audience      string `toml:"Audience" yaml:"audience"`
	// ClockSkewSeconds is the leeway applied to exp and nbf.
	ClockSkewSeconds int `toml:"ClockSkewSeconds" yaml:"clockSkewSeconds"`
}
