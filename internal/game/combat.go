package game

import (
	"fmt"
	"math"
	"math/rand"
)

const critBonus = 1.5

// PartDestroyed is emitted when an attack brings a body part's
// efficiency down to exactly zero. It is delivered through the
// resolver's event sink rather than folded into the attack message, so
// listeners (broadcast, stats) can react without coupling to the attack
// call site.
type PartDestroyed struct {
	PlayerName string
	UnitName   string
	Part       Target
}

// AttackOutcome is the result of a single attack.
type AttackOutcome struct {
	Message        string
	Damage         int
	Critical       bool
	Deflected      bool
	PartEfficiency float64
}

// RoundResult is the outcome of one full round: the first mover's attack
// followed by the second mover's retaliation.
type RoundResult struct {
	Attacker       string   `json:"attacker"`
	Defender       string   `json:"defender"`
	TurnMessages   []string `json:"turnMessages"`
	AttackerHealth int      `json:"attackerHp"`
	DefenderHealth int      `json:"defenderHp"`
}

// Finished reports whether either side is out of the duel.
func (rr RoundResult) Finished() bool {
	return rr.AttackerHealth <= 0 || rr.DefenderHealth <= 0
}

// Draw reports whether both sides fell in the same round.
func (rr RoundResult) Draw() bool {
	return rr.AttackerHealth <= 0 && rr.DefenderHealth <= 0
}

// Resolver computes attack outcomes. Randomness is injected so tests can
// pin the critical roll.
type Resolver struct {
	critChance float64
	roll       func() float64
	onDestroy  func(PartDestroyed)
}

// NewResolver builds a resolver with the given critical-hit probability
// and an optional part-destroyed sink. sink may be nil.
func NewResolver(critChance float64, sink func(PartDestroyed)) *Resolver {
	return &Resolver{
		critChance: critChance,
		roll:       rand.Float64,
		onDestroy:  sink,
	}
}

// WithRoll replaces the random source. Test hook.
func (r *Resolver) WithRoll(roll func() float64) *Resolver {
	r.roll = roll
	return r
}

// ResolveAttack applies one attack from attacker to defender at the
// chosen target. Damage = round(baseDamage × multiplier), with the
// critical bonus applied before rounding. A defender holding deflect
// charges burns one to halve the blow. Defender health is clamped at
// zero and the hit part's efficiency degrades by damage/maxHealth.
func (r *Resolver) ResolveAttack(attacker, defender *Combatant, target Target) AttackOutcome {
	raw := float64(attacker.BaseDamage) * target.Multiplier()
	crit := r.roll() < r.critChance
	if crit {
		raw *= critBonus
	}
	damage := int(math.Round(raw))

	deflected := false
	if defender.DeflectCharges > 0 && damage > 0 {
		defender.DeflectCharges--
		damage /= 2
		deflected = true
	}

	defender.ApplyDamage(damage)
	eff, destroyed := defender.WearPart(target, damage)
	if destroyed && r.onDestroy != nil {
		r.onDestroy(PartDestroyed{
			PlayerName: defender.PlayerName,
			UnitName:   defender.UnitName,
			Part:       target,
		})
	}

	msg := fmt.Sprintf("%s hits %s in the %s for %d damage",
		attacker.UnitName, defender.UnitName, target, damage)
	if crit {
		msg += " (critical hit!)"
	}
	if deflected {
		msg += " (deflected)"
	}
	return AttackOutcome{
		Message:        msg,
		Damage:         damage,
		Critical:       crit,
		Deflected:      deflected,
		PartEfficiency: eff,
	}
}

// ResolveRound performs the two attacks of a round sequentially: first
// mover strikes, then the second mover retaliates. The retaliation is
// not weakened by the damage just taken; only health changed.
func (r *Resolver) ResolveRound(p1 *Combatant, target1 Target, p2 *Combatant, target2 Target) RoundResult {
	first := r.ResolveAttack(p1, p2, target1)
	second := r.ResolveAttack(p2, p1, target2)
	return RoundResult{
		Attacker:       p1.PlayerName,
		Defender:       p2.PlayerName,
		TurnMessages:   []string{first.Message, second.Message},
		AttackerHealth: p1.Health,
		DefenderHealth: p2.Health,
	}
}
