package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/carenet/carenet/internal/platform/facility"
	"github.com/carenet/carenet/internal/platform/peer"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	FacilityName      string        `mapstructure:"FACILITY_NAME"`
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	StoreDriver       string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema          string        `mapstructure:"DB_SCHEMA"`
	Master            bool          `mapstructure:"MASTER"`
	Peers             []string      `mapstructure:"PEERS"`
	PeerHealthTimeout time.Duration `mapstructure:"PEER_HEALTH_TIMEOUT"`
	PeerDataTimeout   time.Duration `mapstructure:"PEER_DATA_TIMEOUT"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	PrefixAliases     string        `mapstructure:"PREFIX_ALIASES"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`

	aliases []facility.Alias
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("FACILITY_NAME", "Central Hospital")
	v.SetDefault("PORT", "5000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MASTER", false)
	v.SetDefault("PEER_HEALTH_TIMEOUT", peer.DefaultHealthTimeout)
	v.SetDefault("PEER_DATA_TIMEOUT", peer.DefaultDataTimeout)
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("PREFIX_ALIASES", "Central:CEN,City:CTY,General:GEN")
	v.SetDefault("CORS_ORIGINS", "*")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("FACILITY_NAME")
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("STORE_DRIVER")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("DB_SCHEMA")
	v.BindEnv("MASTER")
	v.BindEnv("PEERS")
	v.BindEnv("PEER_HEALTH_TIMEOUT")
	v.BindEnv("PEER_DATA_TIMEOUT")
	v.BindEnv("REQUEST_TIMEOUT")
	v.BindEnv("PREFIX_ALIASES")
	v.BindEnv("CORS_ORIGINS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Peers = splitList(cfg.Peers, v.GetString("PEERS"))
	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))

	aliases, err := facility.ParseAliases(cfg.PrefixAliases)
	if err != nil {
		return nil, fmt.Errorf("PREFIX_ALIASES: %w", err)
	}
	cfg.aliases = aliases

	if cfg.StoreDriver == DriverPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", DriverPostgres)
	}

	if cfg.StoreDriver == DriverMemory {
		log.Println("WARNING: STORE_DRIVER=memory; records are lost when the process exits.")
	}

	return cfg, nil
}

// splitList normalizes a comma-separated list value.
func splitList(parsed []string, raw string) []string {
	if len(parsed) > 1 {
		return trimAll(parsed)
	}
	if raw == "" {
		return nil
	}
	return trimAll(strings.Split(raw, ","))
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Resolver returns the prefix resolver built from PREFIX_ALIASES.
func (c *Config) Resolver() *facility.Resolver {
	if c.aliases == nil {
		return facility.NewResolver(facility.DefaultAliases())
	}
	return facility.NewResolver(c.aliases)
}

// PeerOptions returns the client options derived from the peer timeouts.
func (c *Config) PeerOptions() peer.Options {
	return peer.Options{
		HealthTimeout: c.PeerHealthTimeout,
		DataTimeout:   c.PeerDataTimeout,
	}
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.FacilityName) == "" {
		return fmt.Errorf("FACILITY_NAME is required")
	}
	if c.StoreDriver != DriverPostgres && c.StoreDriver != DriverMemory {
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.StoreDriver)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.PeerHealthTimeout <= 0 || c.PeerDataTimeout <= 0 {
		return fmt.Errorf("PEER_HEALTH_TIMEOUT and PEER_DATA_TIMEOUT must be positive")
	}
	if c.RequestTimeout > 0 && c.RequestTimeout < max(c.PeerHealthTimeout, c.PeerDataTimeout) {
		return fmt.Errorf("REQUEST_TIMEOUT (%s) must cover the peer timeouts", c.RequestTimeout)
	}
	for _, p := range c.Peers {
		if err := peer.ValidateURL(p); err != nil {
			return fmt.Errorf("PEERS: %w", err)
		}
	}
	return nil
}
