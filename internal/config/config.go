// Package config loads the service configuration from a yaml file and
// environment variables.
package config

import (
	"encoding/base64"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	// Port is the port number to listen on. The default is 8080.
	Port int `validate:"required,port" default:"8080"`
	// Hostname is the hostname to listen on. The default is 0.0.0.0.
	Hostname string `validate:"required" default:"0.0.0.0"`
	Auth     struct {
		// Secret is the app shared secret. It verifies embedded-app session
		// tokens and derives the access-token obfuscation key.
		// Base64 encoded.
		Secret Base64Encoded `validate:"required"`
	}
	Backend struct {
		// APIURL is the base URL of the Fishook backend REST API.
		APIURL string `mapstructure:"api_url" validate:"required,url"`
		// ChatURL is the backend chat websocket endpoint.
		ChatURL string `mapstructure:"chat_url" validate:"required"`
		// AccessToken is the platform access token used for backend calls.
		// The merchant session store that would normally resolve per-shop
		// tokens is an external collaborator.
		AccessToken string `mapstructure:"access_token" validate:"required"`
	}
	Chat struct {
		// MaxAttempts bounds consecutive reconnect attempts. Default 5.
		MaxAttempts int `mapstructure:"max_attempts"`
		// Backoff is the fixed delay between reconnect attempts. Default 1s.
		Backoff time.Duration
		// TypingIdle is the outbound typing-burst idle threshold. Default 2s.
		TypingIdle time.Duration `mapstructure:"typing_idle"`
	}
	SQLite struct {
		// File is the path to the transcript cache database file.
		File string `validate:"required"`
		// Migrations is the directory holding the goose migration files.
		Migrations string `validate:"required"`
	}
	Redis struct {
		// Addr enables the analytics snapshot cache when non-empty.
		Addr     string
		Password string
		// TTL is how long a cached dashboard snapshot is served. Default 5m.
		TTL time.Duration
	}
	// AllowedOrigins is a list of origins allowed to call the admin API.
	// The default is ["*"].
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	valid          bool
}

type Base64Encoded []byte

func (b *Base64Encoded) UnmarshalText(text []byte) error {
	dec, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("base64 decode: %w", err)
	}
	*b = dec
	return nil
}

// Load reads the configuration from the config file and environment
// variables. Invalid values are deferred to the validation step.
func Load() (*Config, error) {
	config := &Config{}
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("port", 8080)
	viper.SetDefault("hostname", "0.0.0.0")
	viper.SetDefault("allowed_origins", []string{"*"})
	viper.SetDefault("chat.max_attempts", 5)
	viper.SetDefault("chat.backoff", "1s")
	viper.SetDefault("chat.typing_idle", "2s")
	viper.SetDefault("sqlite.file", "./fishook.db")
	viper.SetDefault("sqlite.migrations", "./migrations")
	viper.SetDefault("redis.ttl", "5m")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errorsAs(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := viper.Unmarshal(&config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		),
	); err != nil {
		// defer error to validation step
		return config, nil
	}
	return config, nil
}

func errorsAs(err error, target *viper.ConfigFileNotFoundError) bool {
	v, ok := err.(viper.ConfigFileNotFoundError)
	if ok {
		*target = v
	}
	return ok
}

func (c *Config) Validate() error {
	if c.valid {
		return nil
	}
	if err := validate.Struct(c); err != nil {
		return err
	}
	c.valid = true
	return nil
}

func FormatValidationErrors(err error) string {
	errors, ok := err.(validator.ValidationErrors)
	if !ok {
		return ""
	}
	trans, _ := uniTrans.GetTranslator("en")
	translated := errors.Translate(trans)

	var sb strings.Builder
	for v := range maps.Values(translated) {
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	return sb.String()
}
