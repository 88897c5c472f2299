package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"MoodTreasury/internal/domain/models"
	drepo "MoodTreasury/internal/domain/repository"
	"MoodTreasury/internal/service/ratelimit"
	"MoodTreasury/internal/services/risk"
	"MoodTreasury/internal/usecase"
	xhttp "MoodTreasury/pkg/http"
	xlogger "MoodTreasury/pkg/logger"
	xutil "MoodTreasury/pkg/util"
)

// OpsHandler exposes the operational surface: health, current state,
// bounded histories, and the guardian kill switch.
type OpsHandler struct {
	logger        *xlogger.Logger
	store         drepo.DurableStore
	gate          *risk.Gate
	tracker       *usecase.ExecutionTracker
	guardianToken string
	rl            *ratelimit.Limiter
}

func NewOpsHandler(logger *xlogger.Logger, store drepo.DurableStore, gate *risk.Gate, tracker *usecase.ExecutionTracker, guardianToken string) *OpsHandler {
	return &OpsHandler{
		logger:        logger,
		store:         store,
		gate:          gate,
		tracker:       tracker,
		guardianToken: guardianToken,
		rl:            ratelimit.New(),
	}
}

func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/state", h.State)
	g.GET("/history/:kind", h.History)
	g.POST("/killswitch", h.KillSwitch)
}

func (h *OpsHandler) Health(c echo.Context) error {
	if err := h.store.Health(c.Request().Context()); err != nil {
		h.logger.Error("store health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("store unavailable"))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

type stateResponse struct {
	Mood             *models.AggregatedMood  `json:"mood,omitempty"`
	Decision         *models.PolicyDecision  `json:"decision,omitempty"`
	Execution        *models.ExecutionRecord `json:"execution,omitempty"`
	Risk             models.RiskState        `json:"risk"`
	ActiveExecutions int                     `json:"activeExecutions"`
}

// State assembles the latest snapshot of every component. Absent records
// are omitted rather than erroring; a fresh deployment has no history.
func (h *OpsHandler) State(c echo.Context) error {
	ctx := c.Request().Context()
	var resp stateResponse

	var mood models.AggregatedMood
	if err := h.store.GetJSON(ctx, drepo.KeyMoodLatest, &mood); err == nil {
		resp.Mood = &mood
	} else if !errors.Is(err, drepo.ErrNotFound) {
		h.logger.Error("read latest mood", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("store unavailable"))
	}

	var decision models.PolicyDecision
	if err := h.store.GetJSON(ctx, drepo.KeyDecisionLatest, &decision); err == nil {
		resp.Decision = &decision
	} else if !errors.Is(err, drepo.ErrNotFound) {
		h.logger.Error("read latest decision", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("store unavailable"))
	}

	var exec models.ExecutionRecord
	if err := h.store.GetJSON(ctx, drepo.KeyExecLatest, &exec); err == nil {
		resp.Execution = &exec
	} else if !errors.Is(err, drepo.ErrNotFound) {
		h.logger.Error("read latest execution", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("store unavailable"))
	}

	riskState, err := h.gate.State(ctx)
	if err != nil {
		h.logger.Error("read risk state", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("store unavailable"))
	}
	resp.Risk = riskState
	resp.ActiveExecutions = h.tracker.ActiveCount()

	return xhttp.SuccessResponse(c, resp)
}

var historyKeys = map[string]string{
	"mood":      drepo.KeyMoodHistory,
	"decision":  drepo.KeyDecisionHistory,
	"execution": drepo.KeyExecHistory,
}

// History serves a time-bounded slice of one append-only history.
func (h *OpsHandler) History(c echo.Context) error {
	key, ok := historyKeys[c.Param("kind")]
	if !ok {
		return xhttp.BadRequestResponse(c, map[string]string{"kind": "must be mood, decision, or execution"})
	}

	now := time.Now().UTC()
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), now.Add(-24*time.Hour))
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), now)
	from, to = xutil.ClampRange(from, to)
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 100)

	raws, err := h.store.RangeHistory(c.Request().Context(), key, from, to, limit)
	if err != nil {
		h.logger.Error("read history", xlogger.String("kind", c.Param("kind")), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("store unavailable"))
	}

	entries := make([]json.RawMessage, len(raws))
	for i, b := range raws {
		entries[i] = b
	}
	return xhttp.SuccessResponse(c, entries)
}

type killSwitchRequest struct {
	Active bool   `json:"active"`
	Reason string `json:"reason"`
}

// KillSwitch flips the guardian halt. Requires the guardian token; the
// switch overrides every other risk consideration until cleared.
func (h *OpsHandler) KillSwitch(c echo.Context) error {
	// throttle token guessing
	if !h.rl.Allow("killswitch:"+c.RealIP(), 5, 0.2) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
	}
	if h.guardianToken == "" || c.Request().Header.Get("X-Guardian-Token") != h.guardianToken {
		return xhttp.UnauthorizedResponse(c, map[string]string{"error": "invalid guardian token"})
	}

	req := &killSwitchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	var err error
	if req.Active {
		err = h.gate.ActivateKillSwitch(ctx, req.Reason)
	} else {
		err = h.gate.DeactivateKillSwitch(ctx)
	}
	if err != nil {
		h.logger.Error("kill switch update failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("store unavailable"))
	}

	return xhttp.SuccessResponse(c, map[string]bool{"active": req.Active})
}

var _ xhttp.Handler = (*OpsHandler)(nil)
