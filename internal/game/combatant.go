package game

// DefaultDeflectCharges is the template value restored on reset.
const DefaultDeflectCharges = 2

// Combatant is the mutable in-duel state of one player's fighting unit.
// Health and part efficiencies are only mutated by the combat resolver;
// the persistence layer hands out and collects whole snapshots.
type Combatant struct {
	PlayerName     string             `json:"player_name"`
	UnitName       string             `json:"unit_name"`
	Health         int                `json:"health"`
	MaxHealth      int                `json:"max_health"`
	BaseDamage     int                `json:"base_damage"`
	DeflectCharges int                `json:"deflect_charges"`
	Parts          map[Target]float64 `json:"parts"` // efficiency per part, 0.0–1.0
}

func NewCombatant(player, unit string, maxHealth, baseDamage int) *Combatant {
	return &Combatant{
		PlayerName:     player,
		UnitName:       unit,
		Health:         maxHealth,
		MaxHealth:      maxHealth,
		BaseDamage:     baseDamage,
		DeflectCharges: DefaultDeflectCharges,
		Parts:          FullParts(),
	}
}

// FullParts returns a fresh efficiency map with every part at 1.0.
func FullParts() map[Target]float64 {
	parts := make(map[Target]float64, len(targetMultipliers))
	for t := range targetMultipliers {
		parts[t] = 1.0
	}
	return parts
}

func (c *Combatant) Alive() bool { return c.Health > 0 }

// ApplyDamage subtracts damage and clamps health to [0, MaxHealth].
func (c *Combatant) ApplyDamage(damage int) {
	c.Health -= damage
	if c.Health < 0 {
		c.Health = 0
	}
	if c.Health > c.MaxHealth {
		c.Health = c.MaxHealth
	}
}

// WearPart lowers the hit part's efficiency proportionally to
// damage/maxHealth, flooring at 0.0. It reports the efficiency after the
// hit and whether this hit brought the part down to exactly zero.
func (c *Combatant) WearPart(t Target, damage int) (float64, bool) {
	if c.Parts == nil {
		c.Parts = FullParts()
	}
	before := c.Parts[t]
	eff := before
	if c.MaxHealth > 0 {
		eff -= float64(damage) / float64(c.MaxHealth)
	}
	if eff <= 0 {
		eff = 0
	}
	c.Parts[t] = eff
	return eff, before > 0 && eff == 0
}

// ResetToTemplate restores the unit to its pristine template: full
// health, full deflect charges, every part back at 1.0.
func (c *Combatant) ResetToTemplate() {
	c.Health = c.MaxHealth
	c.DeflectCharges = DefaultDeflectCharges
	c.Parts = FullParts()
}

// Clone returns a deep copy safe to hand to broadcast code outside the
// room lock.
func (c *Combatant) Clone() *Combatant {
	cp := *c
	cp.Parts = make(map[Target]float64, len(c.Parts))
	for t, eff := range c.Parts {
		cp.Parts[t] = eff
	}
	return &cp
}
