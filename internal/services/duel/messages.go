package duel

import (
	"fmt"

	"duelgo/internal/game"
)

// Outbound wire shapes. Round results go out as game.RoundResult, which
// carries its own JSON layout.

type JoinLeaveMessage struct {
	Type       string `json:"type"` // "join" | "leave"
	PlayerName string `json:"playerName"`
	GameCode   string `json:"gameCode"`
	Message    string `json:"message"`
}

type ChatMessage struct {
	Type       string `json:"type"` // always "chat"
	PlayerName string `json:"playerName"`
	Message    string `json:"message"`
}

type InfoMessage struct {
	Type    string `json:"type"` // always "info"
	Message string `json:"message"`
}

type PartDestroyedMessage struct {
	Type           string `json:"type"` // always "BODY_PART_DESTROYED"
	PlayerUnitName string `json:"playerUnitName"`
	BodyPart       string `json:"bodyPart"`
	Message        string `json:"message"`
}

// StateMessage is the combatant-state snapshot broadcast on join and
// reconnect. Units appear in presence (join) order; a participant whose
// combatant could not be resolved is simply absent from Units.
type StateMessage struct {
	Type     string      `json:"type"` // always "state"
	GameCode string      `json:"gameCode"`
	Units    []UnitState `json:"units"`
}

type UnitState struct {
	PlayerName     string             `json:"playerName"`
	UnitName       string             `json:"unitName"`
	Health         int                `json:"health"`
	MaxHealth      int                `json:"maxHealth"`
	DeflectCharges int                `json:"deflectCharges"`
	Parts          map[string]float64 `json:"parts"`
}

func joinMessage(gameCode, player string) JoinLeaveMessage {
	return JoinLeaveMessage{
		Type:       "join",
		PlayerName: player,
		GameCode:   gameCode,
		Message:    fmt.Sprintf("%s joined the duel", player),
	}
}

func leaveMessage(gameCode, player string) JoinLeaveMessage {
	return JoinLeaveMessage{
		Type:       "leave",
		PlayerName: player,
		GameCode:   gameCode,
		Message:    fmt.Sprintf("%s left the duel", player),
	}
}

func infoMessage(format string, args ...any) InfoMessage {
	return InfoMessage{Type: "info", Message: fmt.Sprintf(format, args...)}
}

func partDestroyedMessage(e game.PartDestroyed) PartDestroyedMessage {
	return PartDestroyedMessage{
		Type:           "BODY_PART_DESTROYED",
		PlayerUnitName: e.UnitName,
		BodyPart:       string(e.Part),
		Message:        fmt.Sprintf("%s's %s was destroyed!", e.UnitName, e.Part),
	}
}

func unitState(c *game.Combatant) UnitState {
	parts := make(map[string]float64, len(c.Parts))
	for t, eff := range c.Parts {
		parts[string(t)] = eff
	}
	return UnitState{
		PlayerName:     c.PlayerName,
		UnitName:       c.UnitName,
		Health:         c.Health,
		MaxHealth:      c.MaxHealth,
		DeflectCharges: c.DeflectCharges,
		Parts:          parts,
	}
}
