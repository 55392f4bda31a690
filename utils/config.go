package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Duration is a time.Duration that reads Go duration strings ("10s") from JSON
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Server configuration
type ServerConfig struct {
	Port int `json:"port"`
}

// Webhook configuration (Node-RED endpoint)
type WebhookConfig struct {
	URL     string   `json:"url"`
	Timeout Duration `json:"timeout"`
}

// WhatsApp session configuration
type WhatsAppConfig struct {
	SessionDB     string   `json:"sessionDb"`
	HistoryDB     string   `json:"historyDb"`
	HistoryLimit  int      `json:"historyLimit"`
	ClientTimeout Duration `json:"clientTimeout"`
	PrintQR       bool     `json:"printQr"`
}

// Config is the complete relay configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Webhook  WebhookConfig  `json:"webhook"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	LogLevel string         `json:"logLevel"`
}

// DefaultConfig returns the values used when no configuration file is present
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 3000,
		},
		Webhook: WebhookConfig{
			URL:     "http://localhost:1880/whatsapp",
			Timeout: Duration(10 * time.Second),
		},
		WhatsApp: WhatsAppConfig{
			SessionDB:     "whatsmeow.db",
			HistoryDB:     "history.db",
			HistoryLimit:  100,
			ClientTimeout: Duration(30 * time.Second),
			PrintQR:       true,
		},
		LogLevel: "info",
	}
}

// LoadConfig reads the JSON configuration file on top of the defaults and then
// applies RELAY_* environment overrides. A missing file is not an error.
func LoadConfig(filePath string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.Open(filePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("opening config file: %w", err)
	default:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(config); err != nil {
			return nil, fmt.Errorf("decoding config file: %w", err)
		}
	}

	if err := applyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(c *Config) error {
	if v := os.Getenv("RELAY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RELAY_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := os.LookupEnv("RELAY_WEBHOOK_URL"); ok {
		c.Webhook.URL = v
	}
	if v := os.Getenv("RELAY_SESSION_DB"); v != "" {
		c.WhatsApp.SessionDB = v
	}
	if v := os.Getenv("RELAY_HISTORY_DB"); v != "" {
		c.WhatsApp.HistoryDB = v
	}
	if v := os.Getenv("RELAY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	for env, dst := range map[string]*Duration{
		"RELAY_WEBHOOK_TIMEOUT": &c.Webhook.Timeout,
		"RELAY_CLIENT_TIMEOUT":  &c.WhatsApp.ClientTimeout,
	} {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		*dst = Duration(d)
	}
	return nil
}

// Address returns the listen address for the HTTP server
func (s ServerConfig) Address() string {
	return fmt.Sprintf(":%d", s.Port)
}

// GetDSN returns the whatsmeow sqlstore connection string
func (w WhatsAppConfig) GetDSN() string {
	return fmt.Sprintf("file:%s?_foreign_keys=on", w.SessionDB)
}
