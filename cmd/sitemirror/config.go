package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tokarotik/sitemirror"
	"github.com/tokarotik/sitemirror/static"
)

type Config struct {
	Proxy  ProxyConfig  `yaml:"proxy" toml:"proxy"`
	Static StaticConfig `yaml:"static" toml:"static"`
}

type ProxyConfig struct {
	Origin      string        `yaml:"origin" toml:"origin"`
	Host        string        `yaml:"host" toml:"host"`
	Port        int           `yaml:"port" toml:"port"`
	Timeout     time.Duration `yaml:"timeout" toml:"timeout"`
	CacheSize   int           `yaml:"cacheSize" toml:"cacheSize"`
	Provider    string        `yaml:"provider" toml:"provider"`
	DB          string        `yaml:"db" toml:"db"`
	MaxBodySize int64         `yaml:"maxBodySize" toml:"maxBodySize"`
}

type StaticConfig struct {
	Root         string `yaml:"root" toml:"root"`
	Host         string `yaml:"host" toml:"host"`
	Port         int    `yaml:"port" toml:"port"`
	NotFoundPage string `yaml:"notFoundPage" toml:"notFoundPage"`
}

func defaultConfig() Config {
	return Config{
		Proxy: ProxyConfig{
			Origin:      sitemirror.DefaultOrigin,
			Host:        "127.0.0.1",
			Port:        5000,
			Timeout:     sitemirror.DefaultTimeout,
			CacheSize:   sitemirror.DefaultCacheSize,
			Provider:    "memory",
			MaxBodySize: sitemirror.DefaultMaxBodySize,
		},
		Static: StaticConfig{
			Root:         ".",
			Host:         "127.0.0.1",
			Port:         8000,
			NotFoundPage: static.DefaultNotFoundPage,
		},
	}
}

// getConfig reads the config file over the defaults.
// The format is chosen by file extension: .toml for TOML, anything else is YAML.
// An empty filename returns the defaults.
func getConfig(filename string) (Config, error) {
	config := defaultConfig()
	if filename == "" {
		return config, nil
	}
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		err = toml.Unmarshal(configBytes, &config)
	default:
		err = yaml.Unmarshal(configBytes, &config)
	}
	if err != nil {
		return config, fmt.Errorf("parse config %s: %w", filename, err)
	}
	return config, nil
}
