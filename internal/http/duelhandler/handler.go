package duelhandler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"duelgo/internal/game"
	"duelgo/internal/services/duel"
	"duelgo/internal/services/players"
)

type Handler struct {
	duelSvc   duel.IDuelService
	playerSvc players.IPlayerService
}

func New(duelSvc duel.IDuelService, playerSvc players.IPlayerService) *Handler {
	return &Handler{duelSvc: duelSvc, playerSvc: playerSvc}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/duels", h.list)
	r.GET("/duels/:code", h.info)
	r.GET("/players/:name/combatant", h.combatant)
	r.GET("/targets", h.targets)
}

// @Summary		Get duel details
// @Description	Returns the live state of a single duel room.
// @Tags			Duels
// @Param			code	path		string	true	"Game code"	default(game123)
// @Success		200	{object}	duel.DuelDTO
// @Failure		404	{object}	ErrorResponse
// @Router			/duels/{code} [get]
func (h *Handler) info(c *gin.Context) {
	dto, err := h.duelSvc.GetDuel(c, c.Param("code"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto)
}

// @Summary		List duels
// @Description	Retrieves a paginated list of duel rooms, optionally filtered by status.
// @Tags			Duels
// @Param			status	query		string	false	"Status filter"			Enums(WAITING,IN_PROGRESS)
// @Param			limit	query		int		false	"Max results (0-100)"	minimum(0)	maximum(100)	default(10)
// @Param			offset	query		int		false	"Offset for pagination"	minimum(0)	default(0)
// @Success		200		{array}		duel.DuelDTO
// @Failure		400		{object}	ErrorResponse
// @Failure		500		{object}	ErrorResponse
// @Router			/duels [get]
func (h *Handler) list(c *gin.Context) {
	var q ListDuelsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	out, err := h.duelSvc.ListDuels(c, q.Status, q.Limit, q.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Get a player's active combatant
// @Description	Returns the currently-equipped combatant for a player.
// @Tags			Players
// @Param			name	path	string	true	"Player name"	default(alice)
// @Success		200	{object}	CombatantResponse
// @Failure		404	{object}	ErrorResponse
// @Router			/players/{name}/combatant [get]
func (h *Handler) combatant(ginCtx *gin.Context) {
	c, err := h.playerSvc.FindActiveCombatant(ginCtx.Request.Context(), ginCtx.Param("name"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, players.ErrNoCombatant) {
			status = http.StatusNotFound
		}
		ginCtx.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}

	parts := make(map[string]float64, len(c.Parts))
	for t, eff := range c.Parts {
		parts[string(t)] = eff
	}
	ginCtx.JSON(http.StatusOK, CombatantResponse{
		PlayerName:     c.PlayerName,
		UnitName:       c.UnitName,
		Health:         c.Health,
		MaxHealth:      c.MaxHealth,
		BaseDamage:     c.BaseDamage,
		DeflectCharges: c.DeflectCharges,
		Parts:          parts,
	})
}

// @Summary		List attack targets
// @Description	Returns the attackable body locations and their damage multipliers.
// @Tags			Duels
// @Success		200	{object}	TargetsResponse
// @Router			/targets [get]
func (h *Handler) targets(c *gin.Context) {
	out := make(map[string]float64)
	for _, t := range game.Targets() {
		out[string(t)] = t.Multiplier()
	}
	c.JSON(http.StatusOK, TargetsResponse{Targets: out})
}
