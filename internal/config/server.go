package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	HTTP             HTTPConfig `mapstructure:"http"`
	GRPC             GRPCConfig `mapstructure:"grpc"`
	CORSAllowOrigins []string   `mapstructure:"cors_allow_origins"`
}

type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (c HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (c GRPCConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
