package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noCrit() float64     { return 0.99 }
func alwaysCrit() float64 { return 0.0 }

func newTestCombatant(player, unit string, health, damage int) *Combatant {
	c := NewCombatant(player, unit, health, damage)
	c.DeflectCharges = 0 // deflection covered by its own test
	return c
}

func TestResolveAttackHeadshotKills(t *testing.T) {
	// Alice, baseDamage 10, HEAD ×2.0, no crit, defender at 20 hp.
	alice := newTestCombatant("alice", "Warden", 30, 10)
	bob := newTestCombatant("bob", "Reaver", 20, 8)

	var destroyed []PartDestroyed
	r := NewResolver(0.10, func(e PartDestroyed) { destroyed = append(destroyed, e) }).
		WithRoll(noCrit)

	out := r.ResolveAttack(alice, bob, TargetHead)

	assert.Equal(t, 20, out.Damage)
	assert.Equal(t, 0, bob.Health)
	assert.False(t, out.Critical)

	// 20 damage on a 20 hp unit wears the part down to exactly zero.
	require.Len(t, destroyed, 1)
	assert.Equal(t, "bob", destroyed[0].PlayerName)
	assert.Equal(t, TargetHead, destroyed[0].Part)
	assert.Equal(t, 0.0, out.PartEfficiency)
}

func TestResolveAttackCriticalBonusBeforeRounding(t *testing.T) {
	alice := newTestCombatant("alice", "Warden", 30, 10)
	bob := newTestCombatant("bob", "Reaver", 100, 8)

	r := NewResolver(0.10, nil).WithRoll(alwaysCrit)
	out := r.ResolveAttack(alice, bob, TargetLeftArm)

	// 10 × 0.75 × 1.5 = 11.25 → 11
	assert.True(t, out.Critical)
	assert.Equal(t, 11, out.Damage)
	assert.Equal(t, 89, bob.Health)
}

func TestResolveAttackNeverBelowZero(t *testing.T) {
	alice := newTestCombatant("alice", "Warden", 30, 100)
	bob := newTestCombatant("bob", "Reaver", 5, 8)

	r := NewResolver(0.10, nil).WithRoll(noCrit)
	r.ResolveAttack(alice, bob, TargetHead)

	assert.Equal(t, 0, bob.Health)
}

func TestResolveAttackDeflectHalvesAndBurnsCharge(t *testing.T) {
	alice := newTestCombatant("alice", "Warden", 30, 10)
	bob := newTestCombatant("bob", "Reaver", 40, 8)
	bob.DeflectCharges = 1

	r := NewResolver(0.10, nil).WithRoll(noCrit)
	out := r.ResolveAttack(alice, bob, TargetHead)

	assert.True(t, out.Deflected)
	assert.Equal(t, 10, out.Damage)
	assert.Equal(t, 30, bob.Health)
	assert.Equal(t, 0, bob.DeflectCharges)

	// Next hit lands at full strength.
	out = r.ResolveAttack(alice, bob, TargetHead)
	assert.False(t, out.Deflected)
	assert.Equal(t, 20, out.Damage)
}

func TestResolveRoundSequentialAttacks(t *testing.T) {
	p1 := newTestCombatant("alice", "Warden", 50, 10)
	p2 := newTestCombatant("bob", "Reaver", 50, 8)

	r := NewResolver(0.10, nil).WithRoll(noCrit)
	rr := r.ResolveRound(p1, TargetChest, p2, TargetLeftLeg)

	require.Len(t, rr.TurnMessages, 2)
	assert.Equal(t, "alice", rr.Attacker)
	assert.Equal(t, "bob", rr.Defender)
	// p1 → p2: 10 × 1.0 = 10; p2 → p1: 8 × 0.5 = 4.
	assert.Equal(t, 40, rr.DefenderHealth)
	assert.Equal(t, 46, rr.AttackerHealth)
	assert.False(t, rr.Finished())
}

func TestResolveRoundRetaliationAfterDeath(t *testing.T) {
	// The defender still retaliates in the same round even if the first
	// strike drops them; resolution is sequential, not interleaved.
	p1 := newTestCombatant("alice", "Warden", 50, 20)
	p2 := newTestCombatant("bob", "Reaver", 20, 8)

	r := NewResolver(0.10, nil).WithRoll(noCrit)
	rr := r.ResolveRound(p1, TargetChest, p2, TargetChest)

	assert.Equal(t, 0, rr.DefenderHealth)
	assert.Equal(t, 42, rr.AttackerHealth)
	assert.True(t, rr.Finished())
	assert.False(t, rr.Draw())
}

func TestResolveRoundDraw(t *testing.T) {
	p1 := newTestCombatant("alice", "Warden", 10, 20)
	p2 := newTestCombatant("bob", "Reaver", 10, 20)

	r := NewResolver(0.10, nil).WithRoll(noCrit)
	rr := r.ResolveRound(p1, TargetChest, p2, TargetChest)

	assert.True(t, rr.Draw())
}

func TestParseTarget(t *testing.T) {
	tgt, err := ParseTarget("HEAD")
	require.NoError(t, err)
	assert.Equal(t, 2.0, tgt.Multiplier())

	_, err = ParseTarget("NECK")
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestResetToTemplate(t *testing.T) {
	c := NewCombatant("alice", "Warden", 30, 10)
	c.Health = 3
	c.DeflectCharges = 0
	c.Parts[TargetHead] = 0.0

	c.ResetToTemplate()

	assert.Equal(t, 30, c.Health)
	assert.Equal(t, DefaultDeflectCharges, c.DeflectCharges)
	assert.Equal(t, 1.0, c.Parts[TargetHead])
}
