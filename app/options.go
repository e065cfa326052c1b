package app

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/talkvault/talkvault/internal/message_broaker"
	"github.com/talkvault/talkvault/internal/tasks"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	// Optional: inject connections instead of creating them from config
	db       *sql.DB
	redis    redis.UniversalClient
	broker   message_broaker.MessageBroker
	registry *prometheus.Registry

	collaborators *tasks.Collaborators
}

// WithDB injects a database whose schema is already migrated.
func WithDB(db *sql.DB) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
	}
}

// WithRedis injects a custom Redis client. Useful for testing.
func WithRedis(redis redis.UniversalClient) ContainerOption {
	return func(c *containerConfig) {
		c.redis = redis
	}
}

// WithBroker replaces the RabbitMQ connection used to publish events.
func WithBroker(b message_broaker.MessageBroker) ContainerOption {
	return func(c *containerConfig) {
		c.broker = b
	}
}

func WithRegistry(reg *prometheus.Registry) ContainerOption {
	return func(c *containerConfig) {
		c.registry = reg
	}
}

// WithCollaborators replaces the handlers' external systems built from config.
func WithCollaborators(collab tasks.Collaborators) ContainerOption {
	return func(c *containerConfig) {
		c.collaborators = &collab
	}
}
