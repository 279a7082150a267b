package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"kisaanmitra/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KISAANMITRA_"

// Market source selectors.
const (
	MarketSourceAPI     = "api"
	MarketSourceDataset = "dataset"
)

// Config is the top-level application configuration.
type Config struct {
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
	HTTP     HTTPConfig     `yaml:"http"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	Soil     SoilConfig     `yaml:"soil"`
	Weather  WeatherConfig  `yaml:"weather"`
	Market   MarketConfig   `yaml:"market"`
	Advisors AdvisorsConfig `yaml:"advisors"`
	MCP      MCPConfig      `yaml:"mcp"`

	// Credentials maps credential names (e.g. OPENWEATHER_API_KEY) to values.
	// Values may be "enc:" encrypted. The environment takes precedence.
	Credentials map[string]string `yaml:"credentials,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // "noop", "stderr", "stdout", "file"
	File        string  `yaml:"file,omitempty"`
	ServiceName string  `yaml:"service_name,omitempty"`
	SampleRatio float64 `yaml:"sample_ratio,omitempty"`
}

// HTTPConfig holds settings shared by every upstream HTTP source.
type HTTPConfig struct {
	UserAgent         string        `yaml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"` // per source, 0 = unlimited
	Burst             int           `yaml:"burst"`
	Breaker           BreakerConfig `yaml:"circuit_breaker"`
}

// BreakerConfig holds per-source circuit breaker settings.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// GeocoderConfig holds location resolver settings.
type GeocoderConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	Qualifier string        `yaml:"qualifier"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// SoilConfig holds soil source settings.
type SoilConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Properties []string      `yaml:"properties,omitempty"`
	Coverage   []string      `yaml:"coverage,omitempty"`
	Timeout    time.Duration `yaml:"timeout"`
}

// WeatherConfig holds weather source settings.
type WeatherConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Credential string        `yaml:"credential"`
	Units      string        `yaml:"units"` // "metric" or "standard"
	Timeout    time.Duration `yaml:"timeout"`
}

// MarketConfig holds market price source settings.
type MarketConfig struct {
	Source     string        `yaml:"source"` // "api" or "dataset"
	Endpoint   string        `yaml:"endpoint"`
	Credential string        `yaml:"credential"`
	Timeout    time.Duration `yaml:"timeout"`
	Dataset    DatasetConfig `yaml:"dataset"`
}

// DatasetConfig locates the local mandi price table.
type DatasetConfig struct {
	Path string `yaml:"path"`
	// Table is required for SQLite files and ignored for CSV.
	Table string `yaml:"table,omitempty"`
	// Refresh is a cron expression or duration; empty loads once at startup.
	Refresh string `yaml:"refresh,omitempty"`
}

// IsSQLite reports whether the dataset path names a SQLite database.
func (d DatasetConfig) IsSQLite() bool {
	switch strings.ToLower(filepath.Ext(d.Path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// AdvisorsConfig holds advisor identity settings.
type AdvisorsConfig struct {
	Model string `yaml:"model"`
}

// MCPConfig holds MCP server identity settings.
type MCPConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		HTTP: HTTPConfig{
			UserAgent:         "kisaanmitra/1.0",
			Timeout:           10 * time.Second,
			RequestsPerMinute: 60,
			Burst:             5,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Geocoder: GeocoderConfig{
			Endpoint:  "https://nominatim.openstreetmap.org/search",
			Qualifier: "India",
			UserAgent: "kisaanmitra/1.0",
			Timeout:   10 * time.Second,
		},
		Soil: SoilConfig{
			Properties: []string{"ph", "organic_carbon", "nitrogen", "phosphorus", "potassium"},
			Timeout:    10 * time.Second,
		},
		Weather: WeatherConfig{
			Endpoint:   "https://api.openweathermap.org/data/2.5/weather",
			Credential: "OPENWEATHER_API_KEY",
			Units:      "metric",
			Timeout:    10 * time.Second,
		},
		Market: MarketConfig{
			Source:     MarketSourceAPI,
			Endpoint:   "https://api.data.gov.in/resource/9ef84268-d588-465a-a308-a864a43d0070",
			Credential: "DATA_GOV_API_KEY",
			Timeout:    10 * time.Second,
		},
		Advisors: AdvisorsConfig{
			Model: "gemini-2.5-flash",
		},
		MCP: MCPConfig{
			Name:    "kisaanmitra",
			Version: "1.0.0",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, domain.NewDomainError("config.Load", domain.ErrConfigLoad, err.Error())
	default:
		if err := validatePermissions(path); err != nil {
			return nil, domain.NewDomainError("config.Load", domain.ErrConfigLoad, err.Error())
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.NewDomainError("config.Load", domain.ErrConfigLoad, fmt.Sprintf("parse %s: %v", path, err))
		}
	}

	ApplyEnvOverrides(cfg)

	if err := decryptSecrets(cfg, os.Getenv(EnvPrefix+"CONFIG_KEY")); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Credential looks up a named credential at call time: environment first,
// then the credentials section. Empty values count as absent.
func (c *Config) Credential(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v, true
	}
	if v := strings.TrimSpace(c.Credentials[name]); v != "" {
		return v, true
	}
	return "", false
}

// ApplyEnvOverrides maps KISAANMITRA_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	list := func(name string, dst *[]string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = splitAndTrim(v, ",")
		}
	}

	str("LOGGER_LEVEL", &cfg.Logger.Level)
	str("LOGGER_FORMAT", &cfg.Logger.Format)
	str("LOGGER_OUTPUT", &cfg.Logger.Output)
	if v := os.Getenv(EnvPrefix + "TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	str("TRACER_EXPORTER", &cfg.Tracer.Exporter)
	str("TRACER_FILE", &cfg.Tracer.File)

	str("HTTP_USER_AGENT", &cfg.HTTP.UserAgent)
	dur("HTTP_TIMEOUT", &cfg.HTTP.Timeout)
	if v := os.Getenv(EnvPrefix + "HTTP_REQUESTS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RequestsPerMinute = n
		}
	}

	str("GEOCODER_ENDPOINT", &cfg.Geocoder.Endpoint)
	str("GEOCODER_QUALIFIER", &cfg.Geocoder.Qualifier)
	dur("GEOCODER_TIMEOUT", &cfg.Geocoder.Timeout)

	str("SOIL_ENDPOINT", &cfg.Soil.Endpoint)
	list("SOIL_COVERAGE", &cfg.Soil.Coverage)
	list("SOIL_PROPERTIES", &cfg.Soil.Properties)

	str("WEATHER_ENDPOINT", &cfg.Weather.Endpoint)
	str("WEATHER_UNITS", &cfg.Weather.Units)

	str("MARKET_SOURCE", &cfg.Market.Source)
	str("MARKET_ENDPOINT", &cfg.Market.Endpoint)
	str("MARKET_DATASET_PATH", &cfg.Market.Dataset.Path)
	str("MARKET_DATASET_TABLE", &cfg.Market.Dataset.Table)
	str("MARKET_DATASET_REFRESH", &cfg.Market.Dataset.Refresh)

	str("ADVISORS_MODEL", &cfg.Advisors.Model)
}

// splitAndTrim splits s by sep, trims each element and drops empty ones.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

const encPrefix = "enc:"

// decryptSecrets replaces "enc:..." credential values with their plaintext.
func decryptSecrets(cfg *Config, passphrase string) error {
	for name, v := range cfg.Credentials {
		if !strings.HasPrefix(v, encPrefix) {
			continue
		}
		if passphrase == "" {
			return domain.NewDomainError("config.Load", domain.ErrDecryption,
				fmt.Sprintf("credential %s is encrypted but %sCONFIG_KEY is not set", name, EnvPrefix))
		}
		plain, err := DecryptValue(strings.TrimPrefix(v, encPrefix), passphrase)
		if err != nil {
			return domain.NewDomainError("config.Load", domain.ErrDecryption,
				fmt.Sprintf("credential %s: %v", name, err))
		}
		cfg.Credentials[name] = plain
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
// The result carries no "enc:" prefix.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", domain.WrapOp("generate salt", domain.ErrEncryption)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", domain.WrapOp("generate nonce", domain.ErrEncryption)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	salt, data, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	payload, err := hex.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, saltBytes)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(payload) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	plaintext, err := gcm.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others,
// since they may hold credentials.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
