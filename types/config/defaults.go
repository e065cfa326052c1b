package config

import (
	"time"

	"github.com/talkvault/talkvault/internal/constants"
)

const (
	DefaultStorageDriver  = SQLite
	DefaultLockDriver     = LockStore
	DefaultTickInterval   = constants.DefaultTickInterval
	DefaultStopTimeout    = constants.DefaultStopTimeout
	DefaultStallTimeout   = time.Duration(0)
	DefaultSQLitePath     = "talkvault.db"
	DefaultLogLevel       = "info"
	DefaultRedisKeyPrefix = "talkvault:lock:"
	DefaultRabbitExchange = "talkvault.events"
	DefaultContentType    = "application/json"
)
