package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quizlive/internal/consensus"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		// URL is the websocket endpoint clients dial.
		URL string `yaml:"url"`
		// Uploads is the directory served under /uploads/.
		Uploads string `yaml:"uploads"`
	} `yaml:"server"`
	Client struct {
		BasePath         string `yaml:"basePath"`
		RepeatGuard      string `yaml:"repeatGuard"`
		Tick             string `yaml:"tick"`
		WarningThreshold string `yaml:"warningThreshold"`
		StatsTopK        int    `yaml:"statsTopK"`
		ExtendSeconds    int    `yaml:"extendSeconds"`
		RevealDelay      string `yaml:"revealDelay"`
	} `yaml:"client"`
	Transport struct {
		Retries int    `yaml:"retries"`
		Backoff string `yaml:"backoff"`
	} `yaml:"transport"`
	Consensus consensus.Config `yaml:"consensus"`
	Redis     struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
		Dir string `yaml:"dir"`
	} `yaml:"quiz"`
	Log struct {
		Env string `yaml:"env"`
	} `yaml:"log"`
}

// Load reads YAML config from path. A missing file yields the zero
// config so every command runs on defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// IntOr returns v, or fallback when v is not positive.
func IntOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func (c Config) RepeatGuard() time.Duration {
	return TTLDuration(c.Client.RepeatGuard, 500*time.Millisecond)
}

func (c Config) Tick() time.Duration { return TTLDuration(c.Client.Tick, time.Second) }

func (c Config) WarningThreshold() time.Duration {
	return TTLDuration(c.Client.WarningThreshold, 5*time.Second)
}

func (c Config) RevealDelay() time.Duration {
	return TTLDuration(c.Client.RevealDelay, 3*time.Second)
}

func (c Config) Backoff() time.Duration {
	return TTLDuration(c.Transport.Backoff, 200*time.Millisecond)
}
