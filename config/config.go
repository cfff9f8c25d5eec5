package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddress   string      `toml:"ListenAddress" yaml:"listenAddress"`
	DataDir         string      `toml:"DataDir" yaml:"dataDir"`
	GenesisFile     string      `toml:"GenesisFile" yaml:"genesisFile"`
	EventsDSN       string      `toml:"EventsDSN" yaml:"eventsDSN"`
	RPCAuthToken    string      `toml:"RPCAuthToken" yaml:"rpcAuthToken"`
	RPCAuthTokenEnv string      `toml:"RPCAuthTokenEnv" yaml:"rpcAuthTokenEnv"`
	RPCReadTimeout  int         `toml:"RPCReadTimeout" yaml:"rpcReadTimeout"`
	RPCWriteTimeout int         `toml:"RPCWriteTimeout" yaml:"rpcWriteTimeout"`
	RateLimit       RateLimit   `toml:"rate_limit" yaml:"rateLimit"`
	Log             Log         `toml:"log" yaml:"log"`
	Farm            Farm        `toml:"farm" yaml:"farm"`
	Telemetry       Telemetry   `toml:"telemetry" yaml:"telemetry"`
	AccountAuth     AccountAuth `toml:"account_auth" yaml:"accountAuth"`
}

// Load loads the configuration from the given path. TOML is the default
// format; a .yaml or .yml extension selects YAML. A missing file is created
// with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	applyDefaults(cfg)
	return cfg, nil
}

// AuthToken resolves the bearer token guarding privileged RPC methods. The
// environment variable named by RPCAuthTokenEnv wins over the inline value.
func (c *Config) AuthToken() string {
	if c == nil {
		return ""
	}
	if name := strings.TrimSpace(c.RPCAuthTokenEnv); name != "" {
		if token := strings.TrimSpace(os.Getenv(name)); token != "" {
			return token
		}
	}
	return strings.TrimSpace(c.RPCAuthToken)
}

// AccountSecret resolves the HMAC secret verifying account JWTs. The
// environment variable named by HMACSecretEnv wins over the inline value.
func (c *Config) AccountSecret() string {
	if c == nil {
		return ""
	}
	if name := strings.TrimSpace(c.AccountAuth.HMACSecretEnv); name != "" {
		if secret := strings.TrimSpace(os.Getenv(name)); secret != "" {
			return secret
		}
	}
	return strings.TrimSpace(c.AccountAuth.HMACSecret)
}

// Default returns the configuration written for a fresh install.
func Default() *Config {
	return &Config{
		ListenAddress:   "127.0.0.1:8547",
		DataDir:         "./farm-data",
		RPCAuthTokenEnv: "FARMD_RPC_TOKEN",
		RPCReadTimeout:  15,
		RPCWriteTimeout: 15,
		RateLimit: RateLimit{
			RequestsPerMinute: 600,
			Burst:             60,
		},
		Log: Log{
			Env:        "dev",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Farm: Farm{
			StakedAsset:     "STK",
			RewardAsset:     "RWD",
			DefaultDuration: 604800,
		},
		AccountAuth: AccountAuth{
			HMACSecretEnv:    "FARMD_ACCOUNT_SECRET",
			ClockSkewSeconds: 120,
		},
	}
}

func applyDefaults(cfg *Config) {
	def := Default()
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = def.ListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.RPCReadTimeout <= 0 {
		cfg.RPCReadTimeout = def.RPCReadTimeout
	}
	if cfg.RPCWriteTimeout <= 0 {
		cfg.RPCWriteTimeout = def.RPCWriteTimeout
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = def.RateLimit.RequestsPerMinute
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if strings.TrimSpace(cfg.Log.Env) == "" {
		cfg.Log.Env = def.Log.Env
	}
	if cfg.Farm.DefaultDuration == 0 {
		cfg.Farm.DefaultDuration = def.Farm.DefaultDuration
	}
	if cfg.AccountAuth.ClockSkewSeconds == 0 {
		cfg.AccountAuth.ClockSkewSeconds = def.AccountAuth.ClockSkewSeconds
	}
	cfg.Farm.StakedAsset = strings.ToUpper(strings.TrimSpace(cfg.Farm.StakedAsset))
	cfg.Farm.RewardAsset = strings.ToUpper(strings.TrimSpace(cfg.Farm.RewardAsset))
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	if isYAML(path) {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	} else if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
