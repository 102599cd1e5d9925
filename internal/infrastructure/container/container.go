package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"futsync/internal/application/port"
	"futsync/internal/infrastructure/config"
	compositerepo "futsync/internal/infrastructure/storage/composite"
	postgresrepo "futsync/internal/infrastructure/storage/postgres"
	redisrepo "futsync/internal/infrastructure/storage/redis"
	sqliterepo "futsync/internal/infrastructure/storage/sqlite"
)

// Container wires the storage stack from config and owns the closer chain.
type Container struct {
	cfg *config.Config

	repo        port.Repository
	redisClient *redis.Client

	closeOnce   sync.Once
	closerChain []func() error
}

func New(cfg *config.Config) (*Container, error) {
	c := &Container{
		cfg:         cfg,
		closerChain: make([]func() error, 0),
	}
	if err := c.initStorage(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// initStorage builds the repository: a durable primary (sqlite or
// postgres) first, then the redis cache tier fanned in via composite.
func (c *Container) initStorage() error {
	repos := make([]port.Repository, 0, 2)

	switch {
	case c.cfg.Storage.SQLite.Enabled:
		repo, err := sqliterepo.New(c.cfg.Storage.SQLite.Path)
		if err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
		c.closerChain = append(c.closerChain, func() error {
			log.Info().Msg("closing sqlite connection")
			return repo.Close()
		})
		log.Info().Str("path", c.cfg.Storage.SQLite.Path).Msg("sqlite initialized")
		repos = append(repos, repo)

	case c.cfg.Storage.Postgres.Enabled:
		repo, err := postgresrepo.New(c.cfg.Storage.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		c.closerChain = append(c.closerChain, func() error {
			log.Info().Msg("closing postgres connection")
			return repo.Close()
		})
		log.Info().Msg("postgres initialized")
		repos = append(repos, repo)
	}

	if c.cfg.Storage.Redis.Enabled {
		repo, err := c.initRedis()
		if err != nil {
			return fmt.Errorf("redis init failed: %w", err)
		}
		repos = append(repos, repo)
	}

	if len(repos) == 1 {
		c.repo = repos[0]
	} else {
		c.repo = compositerepo.New(repos...)
	}
	return nil
}

func (c *Container) initRedis() (*redisrepo.Repo, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Storage.Redis.Addr,
		Password: c.cfg.Storage.Redis.Password,
		DB:       c.cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	c.redisClient = rdb
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", c.cfg.Storage.Redis.Addr).
		Int("db", c.cfg.Storage.Redis.DB).
		Msg("redis initialized")

	ttl := time.Duration(c.cfg.Storage.Redis.TTLSec) * time.Second
	return redisrepo.New(
		rdb,
		c.cfg.Storage.Redis.Prefix,
		ttl,
		c.cfg.Storage.Redis.EventStream,
		c.cfg.Storage.Redis.EventChannel,
	), nil
}

func (c *Container) Config() *config.Config { return c.cfg }

func (c *Container) Repository() port.Repository { return c.repo }

func (c *Container) RedisClient() *redis.Client { return c.redisClient }

// Close releases resources in reverse acquisition order.
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
