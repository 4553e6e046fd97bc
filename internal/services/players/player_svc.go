package players

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"duelgo/internal/game"
)

// Player directory and persistence boundary: combatant lookup/save on
// Postgres with a Redis fast-path cache, plus room row bookkeeping.

const redisPlayerKeyPrefix = "plr:"

var ErrNoCombatant = errors.New("player has no active combatant")

type IPlayerService interface {
	FindActiveCombatant(ctx context.Context, playerName string) (*game.Combatant, error)
	SaveCombatant(ctx context.Context, c *game.Combatant) error
	ResetToTemplateAndSave(ctx context.Context, c *game.Combatant) error
	UpsertRoom(ctx context.Context, gameCode string) error
	DeleteRoom(ctx context.Context, gameCode string) error
}

type playerService struct {
	rdc *redis.Client
	db  *sql.DB
}

func NewPlayerService(rdc *redis.Client, db *sql.DB) IPlayerService {
	return &playerService{rdc: rdc, db: db}
}

// FindActiveCombatant serves from the Redis cache when possible and
// falls back to Postgres, refilling the cache on the way out.
func (svc *playerService) FindActiveCombatant(ctx context.Context, playerName string) (*game.Combatant, error) {
	if snap, _ := svc.rdc.HGetAll(ctx, redisPlayerKeyPrefix+playerName).Result(); len(snap) != 0 {
		if c, err := combatantFromHash(playerName, snap); err == nil {
			return c, nil
		}
		// Unreadable cache entry: fall through to the database.
		zap.L().Warn("players.cache_decode", zap.String("player", playerName))
	}

	const q = `SELECT unit_name, health, max_health, base_damage, deflect_charges, parts
	             FROM combatants
	            WHERE player_name = $1 AND active`
	var (
		c         game.Combatant
		partsJSON []byte
	)
	c.PlayerName = playerName
	err := svc.db.QueryRowContext(ctx, q, playerName).Scan(
		&c.UnitName, &c.Health, &c.MaxHealth, &c.BaseDamage, &c.DeflectCharges, &partsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoCombatant
		}
		return nil, err
	}
	c.Parts = game.FullParts()
	if len(partsJSON) > 0 {
		var parts map[game.Target]float64
		if err := json.Unmarshal(partsJSON, &parts); err == nil && len(parts) > 0 {
			c.Parts = parts
		}
	}

	svc.cacheCombatant(ctx, &c)
	return &c, nil
}

// SaveCombatant upserts the combatant row and refreshes the cache.
func (svc *playerService) SaveCombatant(ctx context.Context, c *game.Combatant) error {
	partsJSON, err := json.Marshal(c.Parts)
	if err != nil {
		return err
	}

	const upsert = `
	  INSERT INTO combatants (player_name, unit_name, health, max_health,
	                          base_damage, deflect_charges, parts, active)
	       VALUES ($1, $2, $3, $4, $5, $6, $7, true)
	  ON CONFLICT (player_name) DO UPDATE
	        SET unit_name       = EXCLUDED.unit_name,
	            health          = EXCLUDED.health,
	            deflect_charges = EXCLUDED.deflect_charges,
	            parts           = EXCLUDED.parts`
	if _, err := svc.db.ExecContext(ctx, upsert,
		c.PlayerName, c.UnitName, c.Health, c.MaxHealth,
		c.BaseDamage, c.DeflectCharges, partsJSON); err != nil {
		return err
	}

	svc.cacheCombatant(ctx, c)
	return nil
}

// ResetToTemplateAndSave restores the combatant to template values
// (full health, full charges, pristine parts) before persisting.
func (svc *playerService) ResetToTemplateAndSave(ctx context.Context, c *game.Combatant) error {
	c.ResetToTemplate()
	return svc.SaveCombatant(ctx, c)
}

func (svc *playerService) UpsertRoom(ctx context.Context, gameCode string) error {
	const q = `INSERT INTO rooms (game_code, status) VALUES ($1, 'WAITING')
	           ON CONFLICT (game_code) DO NOTHING`
	_, err := svc.db.ExecContext(ctx, q, gameCode)
	return err
}

func (svc *playerService) DeleteRoom(ctx context.Context, gameCode string) error {
	if _, err := svc.db.ExecContext(ctx, `DELETE FROM rooms WHERE game_code = $1`, gameCode); err != nil {
		return err
	}
	return nil
}

// cacheCombatant mirrors the combatant into Redis. Best effort; a cache
// miss just costs the next reader a database round-trip.
func (svc *playerService) cacheCombatant(ctx context.Context, c *game.Combatant) {
	partsJSON, err := json.Marshal(c.Parts)
	if err != nil {
		return
	}
	err = svc.rdc.HSet(ctx, redisPlayerKeyPrefix+c.PlayerName,
		"unit", c.UnitName,
		"hp", c.Health,
		"maxhp", c.MaxHealth,
		"dmg", c.BaseDamage,
		"charges", c.DeflectCharges,
		"parts", string(partsJSON),
	).Err()
	if err != nil {
		zap.L().Debug("players.cache_write", zap.String("player", c.PlayerName), zap.Error(err))
		return
	}
	_ = svc.rdc.Expire(ctx, redisPlayerKeyPrefix+c.PlayerName, 10*time.Minute).Err()
}

func combatantFromHash(playerName string, snap map[string]string) (*game.Combatant, error) {
	health, err1 := strconv.Atoi(snap["hp"])
	maxHealth, err2 := strconv.Atoi(snap["maxhp"])
	damage, err3 := strconv.Atoi(snap["dmg"])
	charges, err4 := strconv.Atoi(snap["charges"])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || snap["unit"] == "" {
		return nil, fmt.Errorf("malformed combatant cache for %s", playerName)
	}

	c := &game.Combatant{
		PlayerName:     playerName,
		UnitName:       snap["unit"],
		Health:         health,
		MaxHealth:      maxHealth,
		BaseDamage:     damage,
		DeflectCharges: charges,
		Parts:          game.FullParts(),
	}
	if raw := snap["parts"]; raw != "" {
		var parts map[game.Target]float64
		if err := json.Unmarshal([]byte(raw), &parts); err == nil && len(parts) > 0 {
			c.Parts = parts
		}
	}
	return c, nil
}
