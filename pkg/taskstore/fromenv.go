package taskstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BioMedGraphica/conn-backend/internal/util"
)

// NewFromEnv builds the store selected by STORE_ADAPTER. Redis is the
// default; "postgres" opens a pool on DATABASE_URL instead. Server and
// worker must point at the same backend or paused jobs cannot resume.
func NewFromEnv(ctx context.Context) (Store, error) {
	switch util.GetEnv("STORE_ADAPTER") {
	case "postgres":
		pool, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return NewPostgres(ctx, pool)
	default:
		return NewRedis(ctx, RedisParams{
			Addr:     util.GetEnvString("REDIS_ADDR", "localhost:6379"),
			Password: util.GetEnv("REDIS_PASSWORD"),
			DB:       util.GetEnvInt("REDIS_DB", 0),
		})
	}
}
