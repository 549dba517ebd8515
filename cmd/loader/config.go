package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pyropy/chunkloader/core/ledger"
)

type Config struct {
	Server struct {
		Host string `envconfig:"SERVER_HOST" default:"localhost"`
		Port int    `envconfig:"SERVER_PORT" default:"1234"`
	}
	Ledger struct {
		// empty keeps the ledger in memory
		Path            string        `envconfig:"LEDGER_PATH"`
		MonitorInterval time.Duration `envconfig:"MONITOR_INTERVAL" default:"1m"`
	}
	Rent struct {
		LamportsPerByteYear uint64 `envconfig:"RENT_LAMPORTS_PER_BYTE_YEAR" default:"3480"`
		ExemptionThreshold  uint64 `envconfig:"RENT_EXEMPTION_THRESHOLD" default:"2"`
	}
	Loader struct {
		MaxChunkLen     int           `envconfig:"MAX_CHUNK_BYTES" default:"943"`
		ReplayCacheSize int           `envconfig:"REPLAY_CACHE_SIZE" default:"65536"`
		RequestMaxAge   time.Duration `envconfig:"REQUEST_MAX_AGE" default:"2m"`
	}
	Faucet FaucetConfig
}

type FaucetConfig struct {
	Enabled     bool   `envconfig:"FAUCET_ENABLED" default:"false"`
	MaxLamports uint64 `envconfig:"FAUCET_MAX_LAMPORTS" default:"10000000000"`
}

func GetConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) LedgerRent() ledger.Rent {
	return ledger.Rent{
		LamportsPerByteYear: c.Rent.LamportsPerByteYear,
		ExemptionThreshold:  c.Rent.ExemptionThreshold,
	}
}
