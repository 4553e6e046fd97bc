package syncdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	activeSet  = "duels:active"
	hashPrefix = "duel:"
)

// Every 10 s, mirror the live duel snapshots from Redis into Postgres so
// the rooms table survives a process restart and feeds the REST reads
// for rooms this process no longer holds in memory.
func Run(ctx context.Context, rdc *redis.Client, db *sql.DB) {
	tk := time.NewTicker(10 * time.Second)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				syncOnce(ctx, rdc, db)
			}
		}
	}()
}

func syncOnce(ctx context.Context, rdc *redis.Client, db *sql.DB) {
	codes, err := rdc.SMembers(ctx, activeSet).Result()
	if err != nil || len(codes) == 0 {
		return
	}

	// 1. fetch all room hashes in one pipelined round-trip
	pipe := rdc.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(codes))
	for i, code := range codes {
		cmds[i] = pipe.HGetAll(ctx, hashPrefix+code)
	}

	if _, err = pipe.Exec(ctx); err != nil {
		zap.L().Error("syncdb.pipeline", zap.Error(err))
		return
	}

	// 2. bulk-upsert into Postgres
	const upsert = `
	INSERT INTO rooms (game_code, status, player1, player2, player1_hp, player2_hp)
	     VALUES ($1,$2,$3,$4,$5,$6)
	ON CONFLICT (game_code) DO UPDATE
	       SET status     = EXCLUDED.status,
	           player1    = EXCLUDED.player1,
	           player2    = EXCLUDED.player2,
	           player1_hp = EXCLUDED.player1_hp,
	           player2_hp = EXCLUDED.player2_hp`

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		zap.L().Error("syncdb.tx_begin", zap.Error(err))
		return
	}
	defer tx.Rollback()

	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue // room torn down between SMEMBERS and HGETALL
		}
		code := codes[i]
		if _, err := tx.ExecContext(ctx, upsert,
			code, data["st"], data["p1"], data["p2"], data["p1hp"], data["p2hp"]); err != nil {
			zap.L().Error("syncdb.upsert", zap.String("game", code), zap.Error(err))
		}
	}

	if err = tx.Commit(); err != nil {
		zap.L().Debug("syncdb_error", zap.Error(err))
	}
}
