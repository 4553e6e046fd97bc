package duelhandler

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse

type ListDuelsQuery struct {
	Status string `form:"status"  binding:"omitempty,oneof=WAITING IN_PROGRESS"`
	Limit  int    `form:"limit,default=10"  binding:"gte=0,lte=100"`
	Offset int    `form:"offset,default=0"  binding:"gte=0"`
} // @name ListDuelsQuery

type CombatantResponse struct {
	PlayerName     string             `json:"player_name"`
	UnitName       string             `json:"unit_name"`
	Health         int                `json:"health"`
	MaxHealth      int                `json:"max_health"`
	BaseDamage     int                `json:"base_damage"`
	DeflectCharges int                `json:"deflect_charges"`
	Parts          map[string]float64 `json:"parts"`
} // @name CombatantResponse

type TargetsResponse struct {
	Targets map[string]float64 `json:"targets"` // target name -> damage multiplier
} // @name TargetsResponse
