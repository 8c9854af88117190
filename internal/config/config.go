package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/KevinKickass/OpenLogoBridge/internal/bridge"
	"github.com/KevinKickass/OpenLogoBridge/internal/s7"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig   `mapstructure:"server"`
	Database   DatabaseConfig `mapstructure:"database"`
	Auth       AuthConfig     `mapstructure:"auth"`
	Logo       LogoConfig     `mapstructure:"logo"`
	BlocksFile string         `mapstructure:"blocks_file"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	SampleBuffer   int    `mapstructure:"sample_buffer"`
}

// Auth Configuration
type AuthConfig struct {
	JWTSecretEnv   string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	Argon2         Argon2Config  `mapstructure:"argon2"`
	Users          []UserConfig  `mapstructure:"users"`
}

// Argon2Config holds the argon2id cost used for new password hashes.
// Stored hashes carry their own cost and stay verifiable after a change.
type Argon2Config struct {
	MemoryKiB   uint32 `mapstructure:"memory_kib"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// DefaultArgon2Config is sized for small gateways running next to the PLC.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// UserConfig is an API user; PasswordHash is an argon2id hash (see `plcbridge hash-password`).
type UserConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

// LogoConfig describes the PLC endpoint. TSAPs accept 0x0200, 512 or "02.00".
// Durations accept "200ms" or a bare number of milliseconds.
type LogoConfig struct {
	Address         string        `mapstructure:"address"`
	LocalTSAP       string        `mapstructure:"local_tsap"`
	RemoteTSAP      string        `mapstructure:"remote_tsap"`
	Family          string        `mapstructure:"family"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	ForceUpdate     bool          `mapstructure:"force_update"`
	DBNumber        int           `mapstructure:"db_number"`
	MaxChunk        int           `mapstructure:"max_chunk"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	MaxRetries      int           `mapstructure:"max_retries"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults setzen
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_connections", 4)
	v.SetDefault("database.sample_buffer", 1024)
	v.SetDefault("logo.db_number", 1)
	v.SetDefault("logo.max_chunk", 1024)
	v.SetDefault("logo.retry_delay", "1s")
	v.SetDefault("logo.max_retries", 0)
	v.SetDefault("logo.connect_timeout", "5s")
	v.SetDefault("logo.force_update", false)

	// Auth Defaults
	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")
	argon := DefaultArgon2Config()
	v.SetDefault("auth.argon2.memory_kib", argon.MemoryKiB)
	v.SetDefault("auth.argon2.iterations", argon.Iterations)
	v.SetDefault("auth.argon2.parallelism", argon.Parallelism)
	v.SetDefault("auth.argon2.salt_length", argon.SaltLength)
	v.SetDefault("auth.argon2.key_length", argon.KeyLength)

	// Environment Variables mit Prefix PLCBRIDGE_ (z.B. PLCBRIDGE_LOGO_ADDRESS)
	v.SetEnvPrefix("PLCBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// decodeHook extends viper's default hooks: a bare number for a duration is milliseconds.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(millisecondsHook),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

var durationType = reflect.TypeOf(time.Duration(0))

func millisecondsHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType || from == durationType {
		return data, nil
	}

	switch from.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(reflect.ValueOf(data).Int()) * time.Millisecond, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(reflect.ValueOf(data).Uint()) * time.Millisecond, nil
	case reflect.Float32, reflect.Float64:
		return time.Duration(reflect.ValueOf(data).Float() * float64(time.Millisecond)), nil
	case reflect.String:
		// env overrides arrive as strings
		if n, err := strconv.ParseInt(strings.TrimSpace(reflect.ValueOf(data).String()), 10, 64); err == nil {
			return time.Duration(n) * time.Millisecond, nil
		}
	}
	return data, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET" // Fallback
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		// Development Fallback (MIT WARNING!)
		return "dev-secret-change-in-production-min-32-chars"
	}
	return secret
}

// Helper um zu prüfen ob Production-Ready
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != "dev-secret-change-in-production-min-32-chars" && len(secret) >= 32
}

// BridgeConfig converts the PLC section. TSAP parse errors are reported as
// configuration errors by the bridge (zero TSAP).
func (l *LogoConfig) BridgeConfig() bridge.Config {
	local, _ := ParseTSAP(l.LocalTSAP)
	remote, _ := ParseTSAP(l.RemoteTSAP)

	return bridge.Config{
		Host:            l.Address,
		LocalTSAP:       local,
		RemoteTSAP:      remote,
		Family:          l.Family,
		RefreshInterval: l.RefreshInterval,
		ForceUpdate:     l.ForceUpdate,
	}
}

func (l *LogoConfig) ClientOptions() s7.Options {
	opts := s7.DefaultOptions()
	if l.DBNumber > 0 {
		opts.DBNumber = l.DBNumber
	}
	if l.MaxChunk > 0 {
		opts.MaxChunk = l.MaxChunk
	}
	if l.RetryDelay >= 0 {
		opts.RetryDelay = l.RetryDelay
	}
	if l.ConnectTimeout > 0 {
		opts.ConnectTimeout = l.ConnectTimeout
	}
	opts.MaxRetries = l.MaxRetries
	return opts
}

// ParseTSAP accepts "0x0200", "512" or the LOGO! notation "02.00".
func ParseTSAP(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty TSAP")
	}

	if hi, lo, ok := strings.Cut(s, "."); ok {
		h, err := strconv.ParseUint(hi, 16, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid TSAP %q: %w", s, err)
		}
		l, err := strconv.ParseUint(lo, 16, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid TSAP %q: %w", s, err)
		}
		return uint16(h<<8 | l), nil
	}

	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid TSAP %q: %w", s, err)
	}
	return uint16(n), nil
}
