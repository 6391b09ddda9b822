// Package config defines the top-level configuration for the liquidation bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LIQBOT_* environment variables.
type Config struct {
	Chain       ChainConfig       `toml:"chain"`
	Wallet      WalletConfig      `toml:"wallet"`
	Protocol    ProtocolConfig    `toml:"protocol"`
	Markets     []MarketConfig    `toml:"markets"`
	Liquidation LiquidationConfig `toml:"liquidation"`
	Directory   DirectoryConfig   `toml:"directory"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	Execution   ExecutionConfig   `toml:"execution"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
	// LogFile, when set, also writes JSON logs to a size-rotated file.
	LogFile string `toml:"log_file"`
}

// ChainConfig holds the JSON-RPC endpoint.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID int64  `toml:"chain_id"`
}

// WalletConfig holds the liquidator's key source.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ProtocolConfig holds the lending protocol's contract addresses and how
// liquidation parameters are obtained.
type ProtocolConfig struct {
	Comptroller string `toml:"comptroller"`
	Oracle      string `toml:"oracle"`
	// OracleKind is "compound" (getUnderlyingPrice) or "simple" (getPrice).
	OracleKind string `toml:"oracle_kind"`
	// ParamsMode is "static" (use the values below) or "onchain" (read the
	// Comptroller, refreshed every ParamsRefresh).
	ParamsMode           string   `toml:"params_mode"`
	ParamsRefresh        duration `toml:"params_refresh"`
	CloseFactor          float64  `toml:"close_factor"`
	LiquidationIncentive float64  `toml:"liquidation_incentive"`
	// Pairing names the borrow/collateral selection strategy.
	Pairing string `toml:"pairing"`
	// VerifyMarkets checks the market table against the chain at startup.
	VerifyMarkets bool `toml:"verify_markets"`
}

// MarketConfig is one [[markets]] entry. An empty underlying or "native"
// denotes the chain's native coin.
type MarketConfig struct {
	Symbol             string `toml:"symbol"`
	Market             string `toml:"market"`
	Underlying         string `toml:"underlying"`
	Decimals           int    `toml:"decimals"`
	UnderlyingDecimals int    `toml:"underlying_decimals"`
}

// IsNative reports whether the entry describes the native-coin market.
func (m MarketConfig) IsNative() bool {
	u := strings.TrimSpace(strings.ToLower(m.Underlying))
	return u == "" || u == "native"
}

// LiquidationConfig holds the operator's safety thresholds. Every field is
// required; pointers distinguish a missing value from zero.
type LiquidationConfig struct {
	MinProfitUSD      *float64 `toml:"min_profit_usd"`
	MaxGasPriceGwei   *float64 `toml:"max_gas_price_gwei"`
	MaxLiquidationUSD *float64 `toml:"max_liquidation_usd"`
	MinCollateralUSD  *float64 `toml:"min_collateral_usd"`
}

// DirectoryConfig holds the borrower directory endpoint.
type DirectoryConfig struct {
	APIBase           string   `toml:"api_base"`
	Timeout           duration `toml:"timeout"`
	FallbackAddresses []string `toml:"fallback_addresses"`
}

// SchedulerConfig holds scan cadence.
type SchedulerConfig struct {
	PollInterval duration `toml:"poll_interval"`
	Cooldown     duration `toml:"cooldown"`
	// ScanLock takes a Redis lock per scan when Redis is enabled.
	ScanLock bool     `toml:"scan_lock"`
	LockTTL  duration `toml:"lock_ttl"`
}

// ExecutionConfig holds transaction settings.
type ExecutionConfig struct {
	DryRun            bool     `toml:"dry_run"`
	GasLimitFloor     uint64   `toml:"gas_limit_floor"`
	GasHeadroomPct    int      `toml:"gas_headroom_pct"`
	ConfirmTimeout    duration `toml:"confirm_timeout"`
	UnlimitedApproval bool     `toml:"unlimited_approval"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// Namespace prefixes every key and channel; bots sharing a namespace
	// share the scan lock and event bus.
	Namespace string `toml:"namespace"`
}

// S3Config holds S3-compatible object storage parameters used for the
// ledger archive.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Protocol: ProtocolConfig{
			OracleKind:           "compound",
			ParamsMode:           "static",
			ParamsRefresh:        duration{time.Hour},
			CloseFactor:          0.5,
			LiquidationIncentive: 0.08,
			Pairing:              "largest",
			VerifyMarkets:        true,
		},
		Directory: DirectoryConfig{
			Timeout: duration{10 * time.Second},
		},
		Scheduler: SchedulerConfig{
			PollInterval: duration{30 * time.Second},
			Cooldown:     duration{5 * time.Second},
			ScanLock:     true,
			LockTTL:      duration{5 * time.Minute},
		},
		Execution: ExecutionConfig{
			GasLimitFloor:  500_000,
			GasHeadroomPct: 20,
			ConfirmTimeout: duration{3 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "liquidbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "liquidbot-ledger",
			ForcePathStyle:  true,
			ArchiveInterval: duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"liquidation_success", "liquidation_failed", "shutdown"},
		},
		Mode:     "liquidate",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"liquidate": true,
	"monitor":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: liquidate, monitor)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}

	// Wallet: only liquidate mode signs transactions.
	if strings.ToLower(c.Mode) == "liquidate" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode liquidate")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Protocol
	if !isAddress(c.Protocol.Comptroller) {
		errs = append(errs, fmt.Sprintf("protocol: comptroller %q is not a valid address", c.Protocol.Comptroller))
	}
	if !isAddress(c.Protocol.Oracle) {
		errs = append(errs, fmt.Sprintf("protocol: oracle %q is not a valid address", c.Protocol.Oracle))
	}
	switch c.Protocol.OracleKind {
	case "compound", "simple":
	default:
		errs = append(errs, fmt.Sprintf("protocol: unknown oracle_kind %q (valid: compound, simple)", c.Protocol.OracleKind))
	}
	switch c.Protocol.ParamsMode {
	case "static", "onchain":
	default:
		errs = append(errs, fmt.Sprintf("protocol: unknown params_mode %q (valid: static, onchain)", c.Protocol.ParamsMode))
	}
	if c.Protocol.CloseFactor <= 0 || c.Protocol.CloseFactor > 1 {
		errs = append(errs, fmt.Sprintf("protocol: close_factor must be in (0, 1], got %g", c.Protocol.CloseFactor))
	}
	if c.Protocol.LiquidationIncentive < 0 || c.Protocol.LiquidationIncentive >= 1 {
		errs = append(errs, fmt.Sprintf("protocol: liquidation_incentive must be in [0, 1), got %g", c.Protocol.LiquidationIncentive))
	}

	// Markets
	if len(c.Markets) == 0 {
		errs = append(errs, "markets: at least one [[markets]] entry is required")
	}
	for i, m := range c.Markets {
		prefix := fmt.Sprintf("markets[%d]", i)
		if strings.TrimSpace(m.Symbol) == "" {
			errs = append(errs, prefix+": symbol must not be empty")
		}
		if !isAddress(m.Market) {
			errs = append(errs, fmt.Sprintf("%s: market %q is not a valid address", prefix, m.Market))
		}
		if !m.IsNative() && !isAddress(m.Underlying) {
			errs = append(errs, fmt.Sprintf("%s: underlying %q is not a valid address (use \"native\" for the native coin)", prefix, m.Underlying))
		}
		if m.Decimals < 0 || m.Decimals > 36 {
			errs = append(errs, fmt.Sprintf("%s: decimals must be 0-36, got %d", prefix, m.Decimals))
		}
		if m.UnderlyingDecimals < 0 || m.UnderlyingDecimals > 36 {
			errs = append(errs, fmt.Sprintf("%s: underlying_decimals must be 0-36, got %d", prefix, m.UnderlyingDecimals))
		}
	}

	// Liquidation thresholds are required.
	errs = append(errs, requireNonNegative("liquidation: min_profit_usd", c.Liquidation.MinProfitUSD)...)
	errs = append(errs, requirePositive("liquidation: max_gas_price_gwei", c.Liquidation.MaxGasPriceGwei)...)
	errs = append(errs, requirePositive("liquidation: max_liquidation_usd", c.Liquidation.MaxLiquidationUSD)...)
	errs = append(errs, requireNonNegative("liquidation: min_collateral_usd", c.Liquidation.MinCollateralUSD)...)

	// Directory
	if c.Directory.Timeout.Duration <= 0 {
		errs = append(errs, "directory: timeout must be > 0")
	}
	for _, a := range c.Directory.FallbackAddresses {
		if !isAddress(a) {
			errs = append(errs, fmt.Sprintf("directory: fallback address %q is not a valid address", a))
		}
	}
	if c.Directory.APIBase == "" && len(c.Directory.FallbackAddresses) == 0 {
		errs = append(errs, "directory: api_base or fallback_addresses must be set")
	}

	// Scheduler
	if c.Scheduler.PollInterval.Duration <= 0 {
		errs = append(errs, "scheduler: poll_interval must be > 0")
	}
	if c.Scheduler.Cooldown.Duration < 0 {
		errs = append(errs, "scheduler: cooldown must be >= 0")
	}

	// Execution
	if c.Execution.GasHeadroomPct < 0 || c.Execution.GasHeadroomPct > 500 {
		errs = append(errs, fmt.Sprintf("execution: gas_headroom_pct must be 0-500, got %d", c.Execution.GasHeadroomPct))
	}
	if c.Execution.ConfirmTimeout.Duration <= 0 {
		errs = append(errs, "execution: confirm_timeout must be > 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isAddress(s string) bool {
	return common.IsHexAddress(strings.TrimSpace(s))
}

func requireNonNegative(name string, v *float64) []string {
	if v == nil {
		return []string{name + " is required"}
	}
	if *v < 0 {
		return []string{fmt.Sprintf("%s must be >= 0, got %g", name, *v)}
	}
	return nil
}

func requirePositive(name string, v *float64) []string {
	if v == nil {
		return []string{name + " is required"}
	}
	if *v <= 0 {
		return []string{fmt.Sprintf("%s must be > 0, got %g", name, *v)}
	}
	return nil
}
