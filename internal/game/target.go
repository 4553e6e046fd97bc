package game

import "errors"

// Target is an anatomical attack location. Each location carries a fixed
// damage multiplier, loaded once and never mutated.
type Target string

const (
	TargetHead     Target = "HEAD"
	TargetChest    Target = "CHEST"
	TargetLeftArm  Target = "LEFT_ARM"
	TargetRightArm Target = "RIGHT_ARM"
	TargetLeftLeg  Target = "LEFT_LEG"
	TargetRightLeg Target = "RIGHT_LEG"
)

var ErrUnknownTarget = errors.New("unknown target")

var targetMultipliers = map[Target]float64{
	TargetHead:     2.0,
	TargetChest:    1.0,
	TargetLeftArm:  0.75,
	TargetRightArm: 0.75,
	TargetLeftLeg:  0.5,
	TargetRightLeg: 0.5,
}

// ParseTarget validates a wire-level target name.
func ParseTarget(s string) (Target, error) {
	t := Target(s)
	if _, ok := targetMultipliers[t]; !ok {
		return "", ErrUnknownTarget
	}
	return t, nil
}

func (t Target) Multiplier() float64 { return targetMultipliers[t] }

// Targets lists every attackable location. The slice is a fresh copy.
func Targets() []Target {
	return []Target{
		TargetHead, TargetChest,
		TargetLeftArm, TargetRightArm,
		TargetLeftLeg, TargetRightLeg,
	}
}
