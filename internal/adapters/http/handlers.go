package http

import (
	"net/http"

	"github.com/dkeye/practicerooms/internal/adapters/memory"
	"github.com/dkeye/practicerooms/internal/app/orch"
	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	orch    *orch.Orchestrator
	sim     *memory.Platform
	restart func()
}

func (h *handlers) rooms(c *gin.Context) {
	rooms, err := h.orch.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *handlers) permitted(c *gin.Context) {
	ids, err := h.orch.PermittedRooms(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if ids == nil {
		ids = []domain.RoomID{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": ids})
}

func (h *handlers) userStats(c *gin.Context) {
	s, err := h.orch.UserStats(c.Request.Context(), domain.UserID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handlers) lock(c *gin.Context) {
	room, user := domain.RoomID(c.Param("id")), domain.UserID(c.Param("user"))
	if err := h.orch.LockRoom(c.Request.Context(), room, user); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "locked_by": user})
}

func (h *handlers) unlock(c *gin.Context) {
	room := domain.RoomID(c.Param("id"))
	if err := h.orch.UnlockRoom(c.Request.Context(), room); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "locked_by": nil})
}

func (h *handlers) permit(c *gin.Context) {
	room := domain.RoomID(c.Param("id"))
	if err := h.orch.PermitRoom(c.Request.Context(), room); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "permitted": true})
}

func (h *handlers) forbid(c *gin.Context) {
	room := domain.RoomID(c.Param("id"))
	if err := h.orch.ForbidRoom(c.Request.Context(), room); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "permitted": false})
}

func (h *handlers) resetPeriod(c *gin.Context) {
	if err := h.orch.ResetPeriod(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) restartNow(c *gin.Context) {
	if h.restart == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "restart not available"})
		return
	}
	log.Warn().Str("module", "adapters.http").Str("ip", c.ClientIP()).Msg("restart requested")
	h.restart()
	c.JSON(http.StatusAccepted, gin.H{"status": "restarting"})
}

// --- simulation, memory platform only ---

type simRoomReq struct {
	ID       domain.RoomID `json:"id" binding:"required"`
	Name     string        `json:"name" binding:"required"`
	Position int           `json:"position"`
}

type simJoinReq struct {
	User    domain.UserID   `json:"user" binding:"required"`
	Room    domain.RoomID   `json:"room" binding:"required"`
	Display string          `json:"display"`
	Roles   []domain.RoleID `json:"roles"`
}

type simUserReq struct {
	User  domain.UserID `json:"user" binding:"required"`
	Muted bool          `json:"muted"`
}

func (h *handlers) simRoom(c *gin.Context) {
	var req simRoomReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.sim.AddChannel(req.ID, req.Name, req.Position)
	c.JSON(http.StatusCreated, req)
}

func (h *handlers) simJoin(c *gin.Context) {
	var req simJoinReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Display == "" {
		req.Display = string(req.User)
	}
	before := h.sim.Join(req.User, req.Display, req.Room, req.Roles...)
	h.voice(c, orch.VoiceChange{UserID: req.User, Before: before, After: req.Room})
}

func (h *handlers) simLeave(c *gin.Context) {
	var req simUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	before := h.sim.Leave(req.User)
	h.voice(c, orch.VoiceChange{UserID: req.User, Before: before})
}

func (h *handlers) simMute(c *gin.Context) {
	var req simUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room := h.sim.SelfMute(req.User, req.Muted)
	h.voice(c, orch.VoiceChange{UserID: req.User, Before: room, After: room})
}

func (h *handlers) voice(c *gin.Context, ch orch.VoiceChange) {
	if err := h.orch.OnVoiceState(c.Request.Context(), ch); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}
