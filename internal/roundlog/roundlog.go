package roundlog

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const stream = "rounds_stream"

// Run tails the Redis rounds stream and persists every resolved round
// as duel history.
func Run(ctx context.Context, rdc *redis.Client, db *sql.DB) {
	go func() {
		lastID := "0-0"
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			// block up to 2 s for new entries
			res, err := rdc.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   100,
				Block:   2000 * time.Millisecond,
			}).Result()
			if err != nil && err != redis.Nil {
				zap.L().Warn("roundlog.xread", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if len(res) == 0 {
				continue
			}
			entries := res[0].Messages
			if err := persist(ctx, db, entries); err != nil {
				zap.L().Warn("roundlog.persist", zap.Error(err))
			}
			lastID = entries[len(entries)-1].ID
		}
	}()
}

func persist(ctx context.Context, db *sql.DB, msgs []redis.XMessage) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	const ins = `INSERT INTO rounds (game_code, attacker, defender,
	                                 attacker_hp, defender_hp, messages, fought_at)
	             VALUES ($1, $2, $3, $4, $5, $6, to_timestamp($7))
	             ON CONFLICT DO NOTHING`
	for _, m := range msgs {
		code, _ := m.Values["game"].(string)
		attacker, _ := m.Values["attacker"].(string)
		defender, _ := m.Values["defender"].(string)
		ahp, _ := m.Values["ahp"].(string)
		dhp, _ := m.Values["dhp"].(string)
		messages, _ := m.Values["messages"].(string)
		at, _ := m.Values["at"].(string)

		attackerHP, _ := strconv.Atoi(ahp)
		defenderHP, _ := strconv.Atoi(dhp)
		ts, _ := strconv.ParseInt(at, 10, 64)
		if _, err := tx.ExecContext(ctx, ins,
			code, attacker, defender, attackerHP, defenderHP, messages, ts); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
