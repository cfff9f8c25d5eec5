package config

import (
	"fmt"
	"net"
	"strings"
)

var (
	MinRequestsPerMinute = 1
)

// Validate checks the configuration for values the daemon cannot start with.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil config")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return fmt.Errorf("config: invalid ListenAddress %q: %w", c.ListenAddress, err)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must be set")
	}
	staked := strings.ToUpper(strings.TrimSpace(c.Farm.StakedAsset))
	reward := strings.ToUpper(strings.TrimSpace(c.Farm.RewardAsset))
	if staked == "" || reward == "" {
		return fmt.Errorf("farm: StakedAsset and RewardAsset must be set")
	}
	if staked == reward {
		return fmt.Errorf("farm: StakedAsset and RewardAsset must differ")
	}
	if c.Farm.DefaultDuration == 0 {
		return fmt.Errorf("farm: DefaultDuration must be positive")
	}
	if c.RateLimit.RequestsPerMinute < MinRequestsPerMinute {
		return fmt.Errorf("rate_limit: RequestsPerMinute < %d", MinRequestsPerMinute)
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit: Burst <= 0")
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log: rotation limits must not be negative")
	}
	if (c.Telemetry.Traces || c.Telemetry.Metrics) && strings.Contains(c.Telemetry.Endpoint, "://") {
		return fmt.Errorf("telemetry: Endpoint must be host:port without a scheme")
	}
	if c.AccountAuth.ClockSkewSeconds < 0 {
		return fmt.Errorf("account_auth: ClockSkewSeconds must not be negative")
	}
	return nil
}
