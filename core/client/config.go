package client

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Loader struct {
		Addr string `envconfig:"LOADER_ADDR" default:"localhost:1234"`
	}
	Store struct {
		Path string `envconfig:"CLIENT_STORE_PATH" default:".chunkloader"`
	}
	Key struct {
		Path string `envconfig:"CLIENT_KEY_PATH" default:".chunkloader/id.key"`
	}
	MaxChunkLen int `envconfig:"MAX_CHUNK_BYTES" default:"943"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
