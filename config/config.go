package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	Notify  NotifyConfig  `yaml:"notify"`
	Export  ExportConfig  `yaml:"export"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type StorageConfig struct {
	// Path of the SQLite database file. Empty means in-memory.
	Path string `yaml:"path"`
}

type BlobConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type NotifyConfig struct {
	// Days ahead of the due date at which reminders fire.
	ReminderDays int `yaml:"reminder_days"`
}

type ExportConfig struct {
	// Parallel attachment fetches per export.
	Concurrency int `yaml:"concurrency"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "rentledger.db"
	}
	if c.Notify.ReminderDays == 0 {
		c.Notify.ReminderDays = 3
	}
	if c.Export.Concurrency == 0 {
		c.Export.Concurrency = 4
	}
	if c.Blob.Bucket == "" {
		c.Blob.Bucket = "rent-ledger"
	}
}
