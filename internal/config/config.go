package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models curabot.yml.
type Config struct {
	Automation struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"automation"`
	Voice struct {
		BaseURL       string `yaml:"base_url"`
		APIKey        string `yaml:"api_key"`
		PhoneNumberID string `yaml:"phone_number_id"`
	} `yaml:"voice"`
	Billing struct {
		SecretKey     string `yaml:"secret_key"`
		WebhookSecret string `yaml:"webhook_secret"`
		SuccessURL    string `yaml:"success_url"`
		CancelURL     string `yaml:"cancel_url"`
	} `yaml:"billing"`
	Screenshots struct {
		Dir string `yaml:"dir"`
	} `yaml:"screenshots"`
}

// Load reads and validates config from the workspace. Secrets given via
// environment override the file so the file can be committed without them.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.applyEnv()
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Automation.BaseURL == "" {
		return fmt.Errorf("config.automation.base_url is required")
	}
	if c.Screenshots.Dir == "" {
		return fmt.Errorf("config.screenshots.dir is required")
	}
	if c.Billing.SecretKey != "" {
		if c.Billing.SuccessURL == "" || c.Billing.CancelURL == "" {
			return fmt.Errorf("config.billing.success_url and cancel_url are required when billing is enabled")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "curabot.yml")
}

// Default returns a config with local development values.
func Default() *Config {
	var cfg Config
	cfg.Automation.BaseURL = "http://localhost:4111"
	cfg.Screenshots.Dir = "screenshots"
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setIfEnv := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setIfEnv(&c.Automation.BaseURL, "AUTOMATION_API_URL")
	setIfEnv(&c.Automation.APIKey, "AUTOMATION_API_KEY")
	setIfEnv(&c.Voice.BaseURL, "VOICE_BASE_URL")
	setIfEnv(&c.Voice.APIKey, "VOICE_API_KEY")
	setIfEnv(&c.Voice.PhoneNumberID, "VOICE_PHONE_NUMBER_ID")
	setIfEnv(&c.Billing.SecretKey, "STRIPE_SECRET_KEY")
	setIfEnv(&c.Billing.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	setIfEnv(&c.Billing.SuccessURL, "BILLING_SUCCESS_URL")
	setIfEnv(&c.Billing.CancelURL, "BILLING_CANCEL_URL")
	setIfEnv(&c.Screenshots.Dir, "SCREENSHOTS_DIR")
}
