package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel         string        `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort         string        `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort       string        `yaml:"socket-port" env:"SOCKET_PORT" env-default:"8080"`
	GameTTL          time.Duration `yaml:"game-ttl" env:"GAME_TTL" env-default:"24h"`
	ReconnectTimeout time.Duration `yaml:"reconnect-timeout" env:"RECONNECT_TIMEOUT" env-default:"30s"`
	Redis            Redis         `yaml:"redis"`
}

type Redis struct {
	Host string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

// Load reads the YAML file at path and applies environment overrides.
func Load(path string) (*Config, error) {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	return config, nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
