package config

import (
	"fmt"
	"strings"
)

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
	SQLite
	Memory
)

// LockDriver selects where advisory lock rows live.
type LockDriver int

const (
	// LockStore keeps locks in the same database as the jobs table.
	LockStore LockDriver = iota + 1
	LockRedis
)

type MessageQueueDriver int

const (
	RabbitMQ MessageQueueDriver = iota + 1
)

func (d MessageQueueDriver) String() string {
	switch d {
	case RabbitMQ:
		return "rabbitmq"
	default:
		return "unknown"
	}
}

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	case Memory:
		return "memory"
	}
	return "unknown"
}

// UnmarshalText lets env and flag parsing accept the driver by name.
func (d *StorageDriver) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "postgres", "postgresql", "pg":
		*d = Postgres
	case "sqlite", "sqlite3":
		*d = SQLite
	case "memory", "mem":
		*d = Memory
	default:
		return fmt.Errorf("unknown storage driver %q", text)
	}
	return nil
}

func (d LockDriver) String() string {
	switch d {
	case LockStore:
		return "store"
	case LockRedis:
		return "redis"
	}
	return "unknown"
}

func (d *LockDriver) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "store", "db", "database":
		*d = LockStore
	case "redis":
		*d = LockRedis
	default:
		return fmt.Errorf("unknown lock driver %q", text)
	}
	return nil
}
