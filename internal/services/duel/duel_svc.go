package duel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"duelgo/internal/game"
	"duelgo/internal/services/players"
)

const (
	redisDuelKeyPrefix      = "duel:"
	redisTurnTimerKeyPrefix = "turn_t:"
	redisActiveSet          = "duels:active"
	roundsStream            = "rounds_stream"
)

var (
	ErrNoSuchRoom     = errors.New("no such duel room")
	ErrNotInRoom      = errors.New("player is not in this room")
	ErrDuelNotRunning = errors.New("no active duel in this room")
	ErrDuelFinished   = errors.New("duel already finished")
)

// Phase is the duel-level state of a room.
type Phase string

const (
	PhaseWaiting    Phase = "WAITING"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseFinished   Phase = "FINISHED"
)

// Registry is the connection registry the orchestrator talks through.
// Implemented by the ws hub; the orchestrator never sees raw
// connections, only (room, player) addresses and payloads.
type Registry interface {
	Broadcast(gameCode string, payload any)
	Unicast(gameCode, player string, payload any) error
	CloseRoom(gameCode string)
}

// Options tunes the room timing knobs.
type Options struct {
	GraceWindow   time.Duration // offline slot kept alive this long
	AnnounceDelay time.Duration // join/leave notice debounce
	TurnTimeout   time.Duration // abandoned half-round TTL
	CritChance    float64
}

func (o *Options) withDefaults() {
	if o.GraceWindow <= 0 {
		o.GraceWindow = 30 * time.Second
	}
	if o.AnnounceDelay <= 0 {
		o.AnnounceDelay = 2 * time.Second
	}
	if o.TurnTimeout <= 0 {
		o.TurnTimeout = 2 * time.Minute
	}
	if o.CritChance <= 0 {
		o.CritChance = 0.10
	}
}

type DuelDTO struct {
	GameCode  string `json:"game_code"`
	Status    string `json:"status"`
	Player1   string `json:"player1,omitempty"`
	Player2   string `json:"player2,omitempty"`
	Player1HP int    `json:"player1_hp"`
	Player2HP int    `json:"player2_hp"`
}

type IDuelService interface {
	OnConnectionOpened(ctx context.Context, gameCode, player string)
	OnConnectionClosed(ctx context.Context, gameCode, player string)
	Attack(ctx context.Context, gameCode, player, target string) error
	Chat(ctx context.Context, gameCode, player, text string) error
	ExpireTurn(ctx context.Context, gameCode string)
	RoomEmptied(gameCode string)
	GetDuel(ctx context.Context, gameCode string) (*DuelDTO, error)
	ListDuels(ctx context.Context, status string, limit, offset int) ([]DuelDTO, error)
}

// roomState is the mutable server-side state of one duel room. All
// fields behind mu; rooms never share state, so unrelated duels never
// contend. Lock order is always roomState.mu before the presence lock.
type roomState struct {
	code string

	mu          sync.Mutex
	presence    *game.Presence
	turn        *game.Turn
	combatants  map[string]*game.Combatant
	phase       Phase
	joinTimers  map[string]*time.Timer
	leaveTimers map[string]*time.Timer
}

func newRoomState(code string) *roomState {
	return &roomState{
		code:        code,
		presence:    game.NewPresence(),
		combatants:  map[string]*game.Combatant{},
		phase:       PhaseWaiting,
		joinTimers:  map[string]*time.Timer{},
		leaveTimers: map[string]*time.Timer{},
	}
}

type duelService struct {
	registry Registry
	players  players.IPlayerService
	rdc      *redis.Client
	db       *sql.DB
	opts     Options

	rooms sync.Map // game code -> *roomState

	critRoll func() float64 // test hook; nil keeps the default source
}

func NewDuelService(registry Registry, playerSvc players.IPlayerService,
	rdc *redis.Client, db *sql.DB, opts Options) IDuelService {

	opts.withDefaults()
	return &duelService{
		registry: registry,
		players:  playerSvc,
		rdc:      rdc,
		db:       db,
		opts:     opts,
	}
}

// ---------------------------------------------------------------------------
//  Connection lifecycle
// ---------------------------------------------------------------------------

func (s *duelService) OnConnectionOpened(ctx context.Context, gameCode, player string) {
	rs := s.roomOrCreate(ctx, gameCode)

	if rs.presence.IsReconnectAttempt(player) {
		s.handleReconnect(rs, player)
		return
	}
	s.handleJoin(ctx, rs, player)
}

func (s *duelService) handleReconnect(rs *roomState, player string) {
	rs.mu.Lock()
	cancelTimer(rs.leaveTimers, player)
	rs.mu.Unlock()

	// Cancels the pending removal. A timer that already fired is caught
	// by its own offline recheck, not by this call.
	rs.presence.MarkOnline(player)

	zap.L().Debug("duel.reconnect",
		zap.String("game", rs.code), zap.String("player", player))

	s.registry.Broadcast(rs.code, s.stateSnapshot(rs))
	s.registry.Broadcast(rs.code, infoMessage("%s reconnected", player))
}

func (s *duelService) handleJoin(ctx context.Context, rs *roomState, player string) {
	// Admission is serialized by the room lock: two duelist slots, never
	// more. Later arrivals stay connected but get no presence entry, so
	// nothing they send can ever feed the turn aggregator.
	rs.mu.Lock()
	admitted := rs.presence.Contains(player) || len(rs.presence.Order()) < 2
	if admitted {
		rs.presence.Add(player)
	}
	rs.mu.Unlock()

	if !admitted {
		zap.L().Info("duel.spectator",
			zap.String("game", rs.code), zap.String("player", player))
		if err := s.registry.Unicast(rs.code, player,
			infoMessage("Room is full. Watching only.")); err != nil {
			zap.L().Debug("duel.spectator_notice", zap.String("game", rs.code), zap.Error(err))
		}
		_ = s.registry.Unicast(rs.code, player, s.stateSnapshot(rs))
		return
	}

	// Directory lookup happens outside the room lock; no blocking I/O
	// while holding it.
	combatant, err := s.players.FindActiveCombatant(ctx, player)
	if err != nil {
		combatant = nil
		if errors.Is(err, players.ErrNoCombatant) {
			zap.L().Info("duel.join_without_combatant",
				zap.String("game", rs.code), zap.String("player", player))
		} else {
			zap.L().Warn("duel.combatant_lookup",
				zap.String("game", rs.code), zap.String("player", player), zap.Error(err))
		}
	}

	rs.mu.Lock()
	if combatant != nil {
		rs.combatants[player] = combatant
	}
	if rs.phase == PhaseWaiting && len(rs.combatants) == 2 {
		rs.phase = PhaseInProgress
	}
	// Debounced join notice: a reload that drops and returns within the
	// delay produces no notification at all.
	cancelTimer(rs.joinTimers, player)
	rs.joinTimers[player] = time.AfterFunc(s.opts.AnnounceDelay, func() {
		s.announceJoin(rs, player)
	})
	rs.mu.Unlock()

	s.registry.Broadcast(rs.code, s.stateSnapshot(rs))
	s.mirrorRoom(ctx, rs)
}

func (s *duelService) announceJoin(rs *roomState, player string) {
	rs.mu.Lock()
	delete(rs.joinTimers, player)
	rs.mu.Unlock()

	if !rs.presence.Online(player) {
		return // dropped again before the notice was due
	}
	s.registry.Broadcast(rs.code, joinMessage(rs.code, player))
}

func (s *duelService) OnConnectionClosed(ctx context.Context, gameCode, player string) {
	rs := s.room(gameCode)
	if rs == nil {
		return
	}
	// Spectators were never admitted to presence; their drop is not a
	// duelist leaving.
	if !rs.presence.Contains(player) {
		return
	}

	rs.mu.Lock()
	// If the join notice never went out, suppress both sides of the
	// flicker: no join, no leave.
	joinPending := cancelTimer(rs.joinTimers, player)
	cancelTimer(rs.leaveTimers, player)
	if !joinPending {
		rs.leaveTimers[player] = time.AfterFunc(s.opts.AnnounceDelay, func() {
			s.announceLeave(rs, player)
		})
	}
	rs.mu.Unlock()

	rs.presence.MarkOffline(player, s.opts.GraceWindow, func(name string, empty bool) {
		s.onPresenceExpired(gameCode, name, empty)
	})

	zap.L().Debug("duel.offline",
		zap.String("game", gameCode), zap.String("player", player))
}

func (s *duelService) announceLeave(rs *roomState, player string) {
	rs.mu.Lock()
	delete(rs.leaveTimers, player)
	rs.mu.Unlock()

	// Offline recheck is authoritative: a reconnect inside the debounce
	// window means nobody ever hears the player left.
	if rs.presence.Online(player) {
		return
	}
	s.registry.Broadcast(rs.code, leaveMessage(rs.code, player))
}

// onPresenceExpired runs when a participant stayed offline through the
// whole grace window and was removed from the order.
func (s *duelService) onPresenceExpired(gameCode, player string, empty bool) {
	zap.L().Info("duel.presence_expired",
		zap.String("game", gameCode), zap.String("player", player))

	if empty {
		s.teardownRoom(context.Background(), gameCode, "room abandoned")
		return
	}

	rs := s.room(gameCode)
	if rs == nil {
		return
	}
	rs.mu.Lock()
	delete(rs.combatants, player)
	// A half-collected round cannot complete without the leaver.
	rs.turn = nil
	if rs.phase == PhaseInProgress {
		rs.phase = PhaseWaiting
	}
	rs.mu.Unlock()

	s.mirrorRoom(context.Background(), rs)
}

// RoomEmptied is the hub's cascade: the last live connection of the room
// vanished (broadcast eviction or close). The room itself survives until
// presence gives up on its participants.
func (s *duelService) RoomEmptied(gameCode string) {
	rs := s.room(gameCode)
	if rs == nil {
		return
	}
	if rs.presence.Empty() {
		s.teardownRoom(context.Background(), gameCode, "last connection gone")
		return
	}
	// Connections are gone, so anyone still flagged online is de facto
	// offline: put them on the removal clock.
	for _, name := range rs.presence.Order() {
		if rs.presence.Online(name) {
			rs.presence.MarkOffline(name, s.opts.GraceWindow, func(n string, empty bool) {
				s.onPresenceExpired(gameCode, n, empty)
			})
		}
	}
}

// ---------------------------------------------------------------------------
//  Messages
// ---------------------------------------------------------------------------

func (s *duelService) Attack(ctx context.Context, gameCode, player, targetName string) error {
	rs := s.room(gameCode)
	if rs == nil {
		return ErrNoSuchRoom
	}
	if !rs.presence.Contains(player) {
		return ErrNotInRoom
	}
	// Reject malformed targets before touching any turn state.
	target, err := game.ParseTarget(targetName)
	if err != nil {
		return fmt.Errorf("%w: %q", game.ErrUnknownTarget, targetName)
	}

	rs.mu.Lock()
	switch rs.phase {
	case PhaseFinished:
		rs.mu.Unlock()
		return ErrDuelFinished
	case PhaseWaiting:
		rs.mu.Unlock()
		return ErrDuelNotRunning
	}

	newTurn := rs.turn == nil
	if newTurn {
		rs.turn = game.NewTurn()
	}
	rs.turn.AddMove(player, target)
	rs.turn.Commit(player)

	if !rs.turn.ConsumeReadyNotice() {
		rs.mu.Unlock()
		if newTurn {
			s.armTurnTimer(ctx, gameCode)
		}
		if err := s.registry.Unicast(gameCode, player,
			infoMessage("Move registered. Waiting for opponent...")); err != nil {
			zap.L().Debug("duel.ack_unicast", zap.String("game", gameCode), zap.Error(err))
		}
		return nil
	}

	// Both moves are in: resolve while still holding the room.
	order := rs.presence.Order()
	if len(order) < 2 {
		rs.turn = nil
		rs.mu.Unlock()
		return ErrDuelNotRunning
	}
	p1, p2 := rs.combatants[order[0]], rs.combatants[order[1]]
	if p1 == nil || p2 == nil {
		rs.turn = nil
		rs.mu.Unlock()
		return ErrDuelNotRunning
	}
	t1, ok1 := rs.turn.Move(order[0])
	t2, ok2 := rs.turn.Move(order[1])
	if !ok1 || !ok2 {
		// Ready without a move from each duelist; never resolve against
		// a zero-value target.
		rs.turn = nil
		rs.mu.Unlock()
		return ErrDuelNotRunning
	}

	var destroyed []game.PartDestroyed
	resolver := game.NewResolver(s.opts.CritChance, func(e game.PartDestroyed) {
		destroyed = append(destroyed, e)
	})
	if s.critRoll != nil {
		resolver.WithRoll(s.critRoll)
	}
	result := resolver.ResolveRound(p1, t1, p2, t2)

	// The turn is gone before anything is broadcast; the next round's
	// first move never sees stale state.
	rs.turn = nil

	finished := result.Finished()
	draw := result.Draw()
	var winner, loser *game.Combatant
	if finished {
		rs.phase = PhaseFinished
		if !draw {
			winner, loser = p1, p2
			if !p1.Alive() {
				winner, loser = p2, p1
			}
		}
	}
	rs.mu.Unlock()

	_ = s.rdc.Del(ctx, redisTurnTimerKeyPrefix+gameCode).Err()

	s.registry.Broadcast(gameCode, result)
	for _, e := range destroyed {
		s.registry.Broadcast(gameCode, partDestroyedMessage(e))
	}
	s.appendRoundLog(ctx, gameCode, result)
	s.mirrorRoom(ctx, rs)

	if finished {
		s.finalize(ctx, gameCode, winner, loser, p1, p2, draw)
	}
	return nil
}

func (s *duelService) Chat(ctx context.Context, gameCode, player, text string) error {
	rs := s.room(gameCode)
	if rs == nil {
		return ErrNoSuchRoom
	}
	if !rs.presence.Contains(player) {
		return ErrNotInRoom
	}
	s.registry.Broadcast(gameCode, ChatMessage{Type: "chat", PlayerName: player, Message: text})
	return nil
}

// ExpireTurn discards a round that never collected its second move. Fed
// by the turn_t:<code> key-expiry watcher.
func (s *duelService) ExpireTurn(ctx context.Context, gameCode string) {
	rs := s.room(gameCode)
	if rs == nil {
		return
	}
	rs.mu.Lock()
	if rs.turn == nil || rs.turn.IsReady() {
		rs.mu.Unlock()
		return
	}
	rs.turn = nil
	rs.mu.Unlock()

	zap.L().Info("duel.turn_expired", zap.String("game", gameCode))
	s.registry.Broadcast(gameCode, infoMessage("Round timed out, submitted moves were discarded"))
}

// ---------------------------------------------------------------------------
//  Finalization
// ---------------------------------------------------------------------------

func (s *duelService) finalize(ctx context.Context, gameCode string,
	winner, loser, p1, p2 *game.Combatant, draw bool) {

	if draw {
		s.registry.Broadcast(gameCode, infoMessage("The duel ends in a draw!"))
		for _, c := range []*game.Combatant{p1, p2} {
			if err := s.players.ResetToTemplateAndSave(ctx, c); err != nil {
				zap.L().Error("duel.reset_combatant",
					zap.String("player", c.PlayerName), zap.Error(err))
			}
		}
	} else {
		s.registry.Broadcast(gameCode,
			infoMessage("%s wins the duel!", winner.PlayerName))
		if err := s.players.SaveCombatant(ctx, winner); err != nil {
			zap.L().Error("duel.save_winner",
				zap.String("player", winner.PlayerName), zap.Error(err))
		}
		if err := s.players.ResetToTemplateAndSave(ctx, loser); err != nil {
			zap.L().Error("duel.reset_loser",
				zap.String("player", loser.PlayerName), zap.Error(err))
		}
	}

	s.teardownRoom(ctx, gameCode, "duel finished")
}

func (s *duelService) teardownRoom(ctx context.Context, gameCode, reason string) {
	v, ok := s.rooms.LoadAndDelete(gameCode)
	if !ok {
		return
	}
	rs := v.(*roomState)

	rs.mu.Lock()
	for p, t := range rs.joinTimers {
		t.Stop()
		delete(rs.joinTimers, p)
	}
	for p, t := range rs.leaveTimers {
		t.Stop()
		delete(rs.leaveTimers, p)
	}
	rs.turn = nil
	order := rs.presence.Order()
	rs.mu.Unlock()

	for _, name := range order {
		rs.presence.Remove(name)
	}

	s.registry.CloseRoom(gameCode)

	if err := s.players.DeleteRoom(ctx, gameCode); err != nil {
		zap.L().Warn("duel.delete_room", zap.String("game", gameCode), zap.Error(err))
	}
	_ = s.rdc.Del(ctx, redisDuelKeyPrefix+gameCode, redisTurnTimerKeyPrefix+gameCode).Err()
	_ = s.rdc.SRem(ctx, redisActiveSet, gameCode).Err()

	zap.L().Info("duel.room_destroyed",
		zap.String("game", gameCode), zap.String("reason", reason))
}

// ---------------------------------------------------------------------------
//  Read side
// ---------------------------------------------------------------------------

// GetDuel serves running duels from the Redis mirror and falls back to
// the rooms table.
func (s *duelService) GetDuel(ctx context.Context, gameCode string) (*DuelDTO, error) {
	snap, _ := s.rdc.HGetAll(ctx, redisDuelKeyPrefix+gameCode).Result()
	if st, ok := snap["st"]; ok {
		return &DuelDTO{
			GameCode:  gameCode,
			Status:    st,
			Player1:   snap["p1"],
			Player2:   snap["p2"],
			Player1HP: atoi(snap["p1hp"]),
			Player2HP: atoi(snap["p2hp"]),
		}, nil
	}

	const q = `SELECT game_code, status,
	                  coalesce(player1,''), coalesce(player2,''),
	                  coalesce(player1_hp,0), coalesce(player2_hp,0)
	             FROM rooms WHERE game_code = $1`
	dto := &DuelDTO{}
	err := s.db.QueryRowContext(ctx, q, gameCode).Scan(
		&dto.GameCode, &dto.Status, &dto.Player1, &dto.Player2,
		&dto.Player1HP, &dto.Player2HP)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("duel %s not found: %w", gameCode, ErrNoSuchRoom)
		}
		return nil, err
	}
	return dto, nil
}

func (s *duelService) ListDuels(ctx context.Context, status string, limit, offset int) ([]DuelDTO, error) {
	if limit == 0 {
		limit = 10
	}
	var (
		rows *sql.Rows
		err  error
	)
	base := `SELECT game_code, status,
	                coalesce(player1,''), coalesce(player2,''),
	                coalesce(player1_hp,0), coalesce(player2_hp,0)
	           FROM rooms`
	switch status {
	case string(PhaseWaiting), string(PhaseInProgress):
		base += " WHERE status = $1"
		rows, err = s.db.QueryContext(ctx, base+" ORDER BY created_at DESC LIMIT $2 OFFSET $3",
			status, limit, offset)
	default:
		rows, err = s.db.QueryContext(ctx, base+" ORDER BY created_at DESC LIMIT $1 OFFSET $2",
			limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]DuelDTO, 0, limit)
	for rows.Next() {
		var d DuelDTO
		if err := rows.Scan(&d.GameCode, &d.Status, &d.Player1, &d.Player2,
			&d.Player1HP, &d.Player2HP); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *duelService) room(gameCode string) *roomState {
	if v, ok := s.rooms.Load(gameCode); ok {
		return v.(*roomState)
	}
	return nil
}

func (s *duelService) roomOrCreate(ctx context.Context, gameCode string) *roomState {
	v, loaded := s.rooms.LoadOrStore(gameCode, newRoomState(gameCode))
	rs := v.(*roomState)
	if !loaded {
		zap.L().Info("duel.room_created", zap.String("game", gameCode))
		if err := s.players.UpsertRoom(ctx, gameCode); err != nil {
			zap.L().Warn("duel.upsert_room", zap.String("game", gameCode), zap.Error(err))
		}
	}
	return rs
}

// stateSnapshot builds the combatant-state broadcast from clones taken
// under the room lock, so the network write never holds it.
func (s *duelService) stateSnapshot(rs *roomState) StateMessage {
	rs.mu.Lock()
	order := rs.presence.Order()
	units := make([]UnitState, 0, len(order))
	for _, name := range order {
		if c, ok := rs.combatants[name]; ok {
			units = append(units, unitState(c.Clone()))
		}
	}
	rs.mu.Unlock()

	return StateMessage{Type: "state", GameCode: rs.code, Units: units}
}

// mirrorRoom pushes a point-in-time room snapshot into Redis for the
// REST fast path and the periodic DB mirror. Best effort.
func (s *duelService) mirrorRoom(ctx context.Context, rs *roomState) {
	rs.mu.Lock()
	order := rs.presence.Order()
	fields := []any{"st", string(rs.phase)}
	if len(order) > 0 {
		fields = append(fields, "p1", order[0])
		if c := rs.combatants[order[0]]; c != nil {
			fields = append(fields, "p1hp", c.Health, "p1unit", c.UnitName)
		}
	}
	if len(order) > 1 {
		fields = append(fields, "p2", order[1])
		if c := rs.combatants[order[1]]; c != nil {
			fields = append(fields, "p2hp", c.Health, "p2unit", c.UnitName)
		}
	}
	code := rs.code
	rs.mu.Unlock()

	if err := s.rdc.HSet(ctx, redisDuelKeyPrefix+code, fields...).Err(); err != nil {
		zap.L().Debug("duel.mirror", zap.String("game", code), zap.Error(err))
		return
	}
	_ = s.rdc.SAdd(ctx, redisActiveSet, code).Err()
}

// armTurnTimer starts the abandoned-round TTL. The key-expiry watcher
// turns its expiry into ExpireTurn.
func (s *duelService) armTurnTimer(ctx context.Context, gameCode string) {
	err := s.rdc.Set(ctx, redisTurnTimerKeyPrefix+gameCode, 1, s.opts.TurnTimeout).Err()
	if err != nil {
		zap.L().Debug("duel.turn_timer", zap.String("game", gameCode), zap.Error(err))
	}
}

// appendRoundLog feeds the rounds stream tailed by the history writer.
func (s *duelService) appendRoundLog(ctx context.Context, gameCode string, rr game.RoundResult) {
	err := s.rdc.XAdd(ctx, &redis.XAddArgs{
		Stream: roundsStream,
		Values: map[string]any{
			"game":     gameCode,
			"attacker": rr.Attacker,
			"defender": rr.Defender,
			"ahp":      rr.AttackerHealth,
			"dhp":      rr.DefenderHealth,
			"messages": strings.Join(rr.TurnMessages, "\n"),
			"at":       time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		zap.L().Debug("duel.round_log", zap.String("game", gameCode), zap.Error(err))
	}
}

func cancelTimer(m map[string]*time.Timer, key string) bool {
	if t, ok := m[key]; ok {
		t.Stop()
		delete(m, key)
		return true
	}
	return false
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
