package app

import (
	"context"

	"identity-link/internal/cache"
	"identity-link/internal/config"
	"identity-link/internal/db"
	"identity-link/internal/logger"
	"identity-link/internal/redis"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Infra struct {
	DB    *db.DB
	Redis *redis.Client // nil when REDIS_ADDR is unset
	Cache cache.Cache
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	database, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	var tables []db.TableSpec
	for _, t := range LocalTypes() {
		tables = append(tables, t.Table)
	}
	if err := db.Migrate(ctx, database, tables...); err != nil {
		_ = database.Close()
		return nil, err
	}

	logger.Info("database ready", map[string]any{
		"driver": cfg.DatabaseDriver,
	})

	infra := &Infra{DB: database}

	if cfg.RedisAddr == "" {
		mem, err := cache.NewMemory(0)
		if err != nil {
			_ = database.Close()
			return nil, err
		}
		infra.Cache = mem
		logger.Info("in-process cache ready", nil)
		return infra, nil
	}

	redisClient, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	infra.Redis = redisClient
	infra.Cache = cache.NewRedis(redisClient.Client)

	logger.Info("redis ready", nil)

	return infra, nil
}

func (i *Infra) Close() error {
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	return i.DB.Close()
}
