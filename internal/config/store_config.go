package config

import "time"

const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

type StoreConfig interface {
	GetStoreDriver() string
	GetDatabaseDSN() string
	GetJanitorInterval() time.Duration
}

type Store struct {
	Driver          string        `env:"STORE_DRIVER" envDefault:"memory"`
	DSN             string        `env:"DATABASE_DSN"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"5m"`
}

var _ StoreConfig = Store{}

func (s Store) GetStoreDriver() string {
	return s.Driver
}

func (s Store) GetDatabaseDSN() string {
	return s.DSN
}

func (s Store) GetJanitorInterval() time.Duration {
	return s.JanitorInterval
}
