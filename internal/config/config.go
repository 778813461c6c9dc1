package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DBSource        string
	Port            string
	Env             string
	StoreDriver     string
	LogLevel        string
	LogFile         string
	SeedWallets     []SeedWallet
	ShutdownTimeout time.Duration
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("STORE_DRIVER", DriverMemory)
	v.SetDefault("DB_SOURCE", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("SEED_WALLETS", "")
	v.SetDefault("SHUTDOWN_TIMEOUT", "5s")
	v.AutomaticEnv()

	cfg := &Config{
		DBSource:        v.GetString("DB_SOURCE"),
		Port:            v.GetString("SERVER_PORT"),
		Env:             v.GetString("ENVIRONMENT"),
		StoreDriver:     strings.ToLower(v.GetString("STORE_DRIVER")),
		LogLevel:        v.GetString("LOG_LEVEL"),
		LogFile:         v.GetString("LOG_FILE"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
	}

	switch cfg.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.DBSource == "" {
			return nil, fmt.Errorf("DB_SOURCE environment variable is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	seed, err := ParseWallets(v.GetString("SEED_WALLETS"))
	if err != nil {
		return nil, err
	}
	cfg.SeedWallets = seed
	return cfg, nil
}

// SeedWallet is one opening balance for the memory driver.
type SeedWallet struct {
	ID        string
	Balance   int64
	ProfileID *int64
}

// ParseWallets reads a comma separated "wallet:balance[:profile]" list.
func ParseWallets(s string) ([]SeedWallet, error) {
	var out []SeedWallet
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
			return nil, fmt.Errorf("SEED_WALLETS: malformed entry %q", item)
		}
		balance, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || balance < 0 {
			return nil, fmt.Errorf("SEED_WALLETS: invalid balance for %q", parts[0])
		}
		w := SeedWallet{ID: parts[0], Balance: balance}
		if len(parts) == 3 {
			profile, err := strconv.ParseInt(parts[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("SEED_WALLETS: invalid profile for %q", parts[0])
			}
			w.ProfileID = &profile
		}
		out = append(out, w)
	}
	return out, nil
}
