package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configFileEnvVar = "LIPVOICE_CONFIG"

type Config interface {
	EnvConfig
	APIConfig
	StorageConfig
	GoogleConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetLogPretty() bool
}

type StorageConfig interface {
	GetDataFolder() string
	GetStorePath() string
}

// File is the optional YAML overlay. Environment variables win over it.
type File struct {
	AppName          string `yaml:"app_name"`
	Env              string `yaml:"env"`
	LogLevel         string `yaml:"log_level"`
	LogPretty        string `yaml:"log_pretty"`
	BaseURL          string `yaml:"base_url"`
	RequestTimeout   string `yaml:"request_timeout"`
	RefreshTimeout   string `yaml:"refresh_timeout"`
	ExpiryStatusCode int    `yaml:"expiry_status_code"`
	DataFolder       string `yaml:"data_folder"`
	StorePath        string `yaml:"store_path"`
	Google           struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		RedirectURL  string `yaml:"redirect_url"`
		Issuer       string `yaml:"issuer"`
	} `yaml:"google"`
}

type mainConfig struct {
	EnvVars
	API
	Google
}

// New loads .env (if present) and the YAML overlay named by LIPVOICE_CONFIG.
func New() (Config, error) {
	_ = godotenv.Load()

	file := &File{}
	if path := os.Getenv(configFileEnvVar); path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}
	return FromFile(file), nil
}

// FromFile builds a Config over an already parsed overlay.
func FromFile(file *File) Config {
	if file == nil {
		file = &File{}
	}
	return mainConfig{
		EnvVars: EnvVars{file: file},
		API:     API{file: file},
		Google:  Google{file: file},
	}
}

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &f, nil
}
