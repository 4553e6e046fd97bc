package game

// Turn collects both players' chosen targets for the current round. It
// exists only while a round is being gathered and is owned by exactly
// one room, which serializes access; Turn itself carries no lock.
type Turn struct {
	moves     map[string]Target
	committed map[string]bool
	announced bool
}

func NewTurn() *Turn {
	return &Turn{
		moves:     make(map[string]Target, 2),
		committed: make(map[string]bool, 2),
	}
}

// AddMove records (or overwrites) the player's chosen target. A second
// move from the same player before commit replaces the first: last move
// wins.
func (t *Turn) AddMove(player string, target Target) {
	t.moves[player] = target
}

// Commit marks the player's move as final for this round.
func (t *Turn) Commit(player string) {
	if _, ok := t.moves[player]; ok {
		t.committed[player] = true
	}
}

// Move returns the player's recorded target, if any.
func (t *Turn) Move(player string) (Target, bool) {
	tgt, ok := t.moves[player]
	return tgt, ok
}

// Movers lists the players that have recorded a move.
func (t *Turn) Movers() []string {
	out := make([]string, 0, len(t.moves))
	for p := range t.moves {
		out = append(out, p)
	}
	return out
}

// IsReady reports whether exactly two distinct movers have both recorded
// a target and committed it.
func (t *Turn) IsReady() bool {
	if len(t.moves) != 2 {
		return false
	}
	for p := range t.moves {
		if !t.committed[p] {
			return false
		}
	}
	return true
}

// ConsumeReadyNotice returns true exactly once per round, the first time
// the turn is ready. Guards against a duplicate round broadcast.
func (t *Turn) ConsumeReadyNotice() bool {
	if !t.IsReady() || t.announced {
		return false
	}
	t.announced = true
	return true
}
