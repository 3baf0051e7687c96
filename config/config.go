package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig             `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig            `mapstructure:"logging" yaml:"logging"`
	Router   RouterConfig             `mapstructure:"router" yaml:"router"`
	Backends map[string]BackendConfig `mapstructure:"backends" yaml:"backends"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport" yaml:"transport"`
	HTTPPort  int    `mapstructure:"http_port" yaml:"http_port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode" yaml:"mode"`
	Level string `mapstructure:"level" yaml:"level"`
}

// RouterConfig holds router-wide configuration
type RouterConfig struct {
	// DefaultBackend is the sandbox type used when the caller does not pick one.
	DefaultBackend string `mapstructure:"default_backend" yaml:"default_backend"`
	// CodeTemplate is the backend-agnostic code template. Request parameters
	// are substituted into {{name}} placeholders before dispatch.
	CodeTemplate string `mapstructure:"code_template" yaml:"code_template"`
}

// BackendConfig holds per-backend configuration
type BackendConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`
	APIVersion string `mapstructure:"api_version" yaml:"api_version"`
	// Auth selects the credential scheme: "none" or "bearer".
	Auth   string `mapstructure:"auth" yaml:"auth"`
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	// TokenURL, ClientID, ClientSecret and Scope configure an OAuth2
	// client-credentials token source for backends without static API keys.
	TokenURL     string `mapstructure:"token_url" yaml:"token_url"`
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	Scope        string `mapstructure:"scope" yaml:"scope"`
	TimeoutMs    int    `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	SessionReuse bool   `mapstructure:"session_reuse" yaml:"session_reuse"`
	IdleTTLSec   int    `mapstructure:"idle_ttl_sec" yaml:"idle_ttl_sec"`
}

// defaultCodeTemplate is the research script dispatched when no template is
// configured. Parameter values are substituted into the quoted placeholders.
const defaultCodeTemplate = `import requests

destination = "{{destination}}"
dates = "{{dates}}"

geo = requests.get(
    f"https://geocoding-api.open-meteo.com/v1/search?name={destination}&count=1&format=json",
    timeout=5,
).json()
if not geo.get("results"):
    print(f"Could not find data for '{destination}'. Try a major city name.")
    raise SystemExit(0)

lat = geo["results"][0]["latitude"]
lon = geo["results"][0]["longitude"]

weather = requests.get(
    f"https://api.open-meteo.com/v1/forecast?latitude={lat}&longitude={lon}"
    f"&current=temperature_2m,apparent_temperature,weather_code,wind_speed_10m"
    f"&daily=weather_code,temperature_2m_max,temperature_2m_min,precipitation_sum"
    f"&temperature_unit=fahrenheit&forecast_days=5",
    timeout=5,
).json()

curr = weather["current"]
daily = weather["daily"]
result = f"Weather for {destination.title()}\n"
result += f"Current: {curr['temperature_2m']}F, wind {curr['wind_speed_10m']} mph\n"
result += "5-Day Forecast:\n"
for i in range(5):
    result += f"{daily['time'][i]}: {daily['temperature_2m_max'][i]}F / {daily['temperature_2m_min'][i]}F\n"
result += f"Travel dates: {dates}"
print(result)
`

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.transport", "stdio")
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("router.default_backend", "local")
	viper.SetDefault("router.code_template", defaultCodeTemplate)

	// Local backend defaults
	viper.SetDefault("backends.local.enabled", true)
	viper.SetDefault("backends.local.auth", "none")
	viper.SetDefault("backends.local.timeout_ms", 10000)
	viper.SetDefault("backends.local.session_reuse", false)

	// Azure Container Apps dynamic sessions defaults
	viper.SetDefault("backends.aca.enabled", false)
	viper.SetDefault("backends.aca.auth", "bearer")
	viper.SetDefault("backends.aca.api_version", "2024-02-02-preview")
	viper.SetDefault("backends.aca.scope", "https://dynamicsessions.io/.default")
	viper.SetDefault("backends.aca.timeout_ms", 30000)
	viper.SetDefault("backends.aca.session_reuse", true)
	viper.SetDefault("backends.aca.idle_ttl_sec", 600)

	// E2B defaults
	viper.SetDefault("backends.e2b.enabled", false)
	viper.SetDefault("backends.e2b.auth", "bearer")
	viper.SetDefault("backends.e2b.endpoint", "https://api.e2b.app")
	viper.SetDefault("backends.e2b.timeout_ms", 60000)
	viper.SetDefault("backends.e2b.session_reuse", false)

	// Daytona defaults
	viper.SetDefault("backends.daytona.enabled", false)
	viper.SetDefault("backends.daytona.auth", "bearer")
	viper.SetDefault("backends.daytona.endpoint", "https://app.daytona.io/api")
	viper.SetDefault("backends.daytona.timeout_ms", 60000)
	viper.SetDefault("backends.daytona.session_reuse", false)

	// Environment bindings matching the deployment's variable names
	bindings := map[string]string{
		"backends.aca.endpoint":      "ACA_POOL_MANAGEMENT_ENDPOINT",
		"backends.aca.token_url":     "AZURE_TOKEN_URL",
		"backends.aca.client_id":     "AZURE_CLIENT_ID",
		"backends.aca.client_secret": "AZURE_CLIENT_SECRET",
		"backends.e2b.api_key":       "E2B_API_KEY",
		"backends.daytona.api_key":   "DAYTONA_API_KEY",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if c.Router.CodeTemplate == "" {
		return fmt.Errorf("router.code_template must not be empty")
	}

	def, ok := c.Backends[c.Router.DefaultBackend]
	if !ok || !def.Enabled {
		return fmt.Errorf("router.default_backend %q is not an enabled backend", c.Router.DefaultBackend)
	}

	for name, backend := range c.Backends {
		if !backend.Enabled {
			continue
		}
		if backend.Auth != "none" && backend.Auth != "bearer" {
			return fmt.Errorf("backends.%s.auth: %s, must be 'none' or 'bearer'", name, backend.Auth)
		}
		if backend.TimeoutMs <= 0 {
			return fmt.Errorf("backends.%s.timeout_ms must be positive, got: %d", name, backend.TimeoutMs)
		}
	}

	return nil
}

// Timeout returns the execution timeout for one backend as a duration.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// IdleTTL returns the local idle-session expiry for one backend.
func (b BackendConfig) IdleTTL() time.Duration {
	return time.Duration(b.IdleTTLSec) * time.Second
}

// Redacted renders the configuration as YAML with credential material masked,
// for startup logging.
func (c *Config) Redacted() string {
	clone := *c
	clone.Backends = make(map[string]BackendConfig, len(c.Backends))
	for name, backend := range c.Backends {
		if backend.APIKey != "" {
			backend.APIKey = "***"
		}
		if backend.ClientSecret != "" {
			backend.ClientSecret = "***"
		}
		clone.Backends[name] = backend
	}
	out, err := yaml.Marshal(&clone)
	if err != nil {
		return fmt.Sprintf("<unrenderable config: %v>", err)
	}
	return string(out)
}
