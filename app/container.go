package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/talkvault/talkvault/client"
	"github.com/talkvault/talkvault/internal/constants"
	"github.com/talkvault/talkvault/internal/eventbus"
	"github.com/talkvault/talkvault/internal/lock"
	"github.com/talkvault/talkvault/internal/logger"
	"github.com/talkvault/talkvault/internal/message_broaker"
	"github.com/talkvault/talkvault/internal/metrics"
	"github.com/talkvault/talkvault/internal/store"
	"github.com/talkvault/talkvault/internal/tasks"
	"github.com/talkvault/talkvault/internal/trigger"
	"github.com/talkvault/talkvault/types/config"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.Config
	Log    zerolog.Logger

	// Storage connections (created once, shared by all stores); nil when unused
	DB    *sql.DB
	Redis redis.UniversalClient

	JobStore  store.JobStore
	LockStore store.LockStore

	LockManager lock.Manager
	Bus         *eventbus.Bus
	JobManager  *client.JobManager

	Registry       *prometheus.Registry
	Metrics        *metrics.Collector
	MessageBroker  message_broaker.MessageBroker
	EventPublisher *message_broaker.EventPublisher

	detachMetrics func()
	ownsDB        bool
	ownsRedis     bool
	ownsBroker    bool
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per application lifecycle; nothing runs until Start.
func NewContainer(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...ContainerOption) (*Container, error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	c := &Container{Config: cfg, Log: log.With().Str("instance", cfg.Instance).Logger()}
	if err := c.build(ctx, opt); err != nil {
		_ = c.closeConnections()
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, opt *containerConfig) (err error) {
	cfg := c.Config
	if c.DB, err = initStorageConnections(ctx, cfg, opt, logger.Component(c.Log, "db")); err != nil {
		return err
	}
	c.ownsDB = opt.db == nil && c.DB != nil

	if c.JobStore, c.LockStore, err = createStores(cfg.StorageDriver, c.DB); err != nil {
		return err
	}

	if cfg.LockDriver == config.LockRedis {
		c.Redis = opt.redis
		if c.Redis == nil {
			c.Redis = initRedis(cfg.RedisConfig)
			c.ownsRedis = true
		}
	}
	c.LockManager = createLockManager(cfg, c.LockStore, c.Redis, logger.Component(c.Log, "lock"))

	c.Bus = eventbus.New(logger.Component(c.Log, "eventbus"))
	c.JobManager = client.NewJobManager(c.JobStore, c.LockManager,
		client.WithLogger(c.Log),
		client.WithEventBus(c.Bus),
		client.WithTickInterval(cfg.TickInterval),
		client.WithStallTimeout(cfg.StallTimeout),
	)

	if err = c.registerTasks(opt); err != nil {
		return err
	}
	if err = c.registerRepeatingJobs(); err != nil {
		return err
	}
	if err = c.initMetrics(opt.registry); err != nil {
		return err
	}
	return c.initPublisher(opt.broker)
}

func (c *Container) registerTasks(opt *containerConfig) error {
	collab := defaultCollaborators(c.Config, logger.Component(c.Log, "tasks"))
	if opt.collaborators != nil {
		collab = *opt.collaborators
	}
	return tasks.Register(c.JobManager, c.LockManager, collab, c.Config.LibraryDir, c.Config.Concurrency, logger.Component(c.Log, "tasks"))
}

func defaultCollaborators(cfg *config.Config, log zerolog.Logger) tasks.Collaborators {
	collab := tasks.Collaborators{
		Hasher:   tasks.FileHasher{},
		Metadata: tasks.SidecarGenerator{Hasher: tasks.FileHasher{}},
	}
	if cfg.FetchCommand != "" {
		collab.Fetcher = tasks.NewExecFetcher(cfg.FetchCommand, log)
	}
	if cfg.LibraryDir != "" {
		collab.Reconciler = tasks.NewDirReconciler(cfg.LibraryDir, log)
	}
	return collab
}

// registerRepeatingJobs adds the schedules from config in name order.
func (c *Container) registerRepeatingJobs() error {
	names := make([]string, 0, len(c.Config.RepeatingJobs))
	for name := range c.Config.RepeatingJobs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		opts, err := trigger.Parse(c.Config.RepeatingJobs[name])
		if err != nil {
			return fmt.Errorf("repeating job %q: %w", name, err)
		}
		if err := c.JobManager.AddRepeatingJob(name, nil, opts); err != nil {
			return fmt.Errorf("repeating job %q: %w", name, err)
		}
	}
	return nil
}

func (c *Container) initMetrics(reg *prometheus.Registry) error {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	c.Registry = reg
	c.Metrics = collector
	c.detachMetrics = collector.Attach(c.Bus)
	return nil
}

func (c *Container) initPublisher(broker message_broaker.MessageBroker) error {
	if !c.Config.PublishEvents && broker == nil {
		return nil
	}
	if broker == nil {
		mq, err := message_broaker.NewRabbitMQ(c.Config.RabbitMQConfig)
		if err != nil {
			return fmt.Errorf("init rabbitmq: %w", err)
		}
		broker = mq
		c.ownsBroker = true
	}
	c.MessageBroker = broker
	c.EventPublisher = message_broaker.NewEventPublisher(broker, c.Bus, c.Config.Instance, constants.DefaultListenerBuffer, c.Log)
	return nil
}

// Start begins publishing events and then starts the scheduler.
func (c *Container) Start(ctx context.Context) error {
	if c.EventPublisher != nil {
		c.EventPublisher.Start(ctx)
	}
	if err := c.JobManager.Start(ctx); err != nil {
		if c.EventPublisher != nil {
			c.EventPublisher.Stop()
		}
		return err
	}
	return nil
}

// Stop shuts the scheduler down, flushes published events and closes every connection the container opened.
func (c *Container) Stop(ctx context.Context) error {
	var errs []error
	if err := c.JobManager.Stop(ctx); err != nil && !errors.Is(err, client.ErrNotStarted) {
		errs = append(errs, err)
	}
	if c.EventPublisher != nil {
		c.EventPublisher.Stop()
	}
	if c.detachMetrics != nil {
		c.detachMetrics()
	}
	errs = append(errs, c.closeConnections())
	return errors.Join(errs...)
}

func (c *Container) closeConnections() error {
	var errs []error
	if c.ownsBroker && c.MessageBroker != nil {
		errs = append(errs, c.MessageBroker.Close())
	}
	if c.ownsRedis && c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.ownsDB && c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}
