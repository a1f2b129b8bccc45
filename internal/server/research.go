package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aquaregiaswarm-blip/scout/config"
	"github.com/aquaregiaswarm-blip/scout/internal/agent/core"
	"github.com/aquaregiaswarm-blip/scout/internal/agent/telemetry"
	"github.com/aquaregiaswarm-blip/scout/internal/index"
	"github.com/aquaregiaswarm-blip/scout/internal/runtime"
	"github.com/aquaregiaswarm-blip/scout/internal/store"
	"github.com/aquaregiaswarm-blip/scout/internal/stream"
)

var researchTracer = otel.Tracer("scout/internal/server/research")

// ResearchHandler drives research sessions for an initiative: trigger,
// inspect, stop, stream progress, and read the synthesized dashboard.
type ResearchHandler struct {
	cfg    *config.Config
	store  *store.Store
	orch   *core.Orchestrator
	broker stream.Broker
	idx    *index.FindingIndex
}

func NewResearchHandler(cfg *config.Config, st *store.Store, orch *core.Orchestrator, broker stream.Broker, idx *index.FindingIndex) *ResearchHandler {
	return &ResearchHandler{cfg: cfg, store: st, orch: orch, broker: broker, idx: idx}
}

func (h *ResearchHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.POST("/:id/research", h.trigger)
	g.GET("/:id/sessions", h.listSessions)
	g.GET("/:id/sessions/:session_id", h.getSession)
	g.POST("/:id/sessions/:session_id/stop", h.stopSession)
	g.POST("/:id/paths/:path_id/stop", h.stopPath)
	g.GET("/:id/sessions/:session_id/stream", h.streamSession)
	g.GET("/:id/dashboard", h.dashboard)
	g.GET("/:id/findings", h.listFindings)
	g.GET("/:id/findings/search", h.searchFindings)
}

// initiativeOf loads an initiative and verifies it belongs to the
// authenticated user's team.
func (h *ResearchHandler) initiativeOf(c echo.Context) (store.Initiative, error) {
	teamID, err := teamIDOf(c, h.store)
	if err != nil {
		return store.Initiative{}, err
	}
	ctx := c.Request().Context()
	in, err := h.store.GetInitiative(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Initiative{}, echo.NewHTTPError(http.StatusNotFound, "initiative not found")
		}
		return store.Initiative{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if _, err := h.store.GetCompany(ctx, teamID, in.CompanyID); err != nil {
		return store.Initiative{}, echo.NewHTTPError(http.StatusNotFound, "initiative not found")
	}
	return in, nil
}

// trigger starts a research session. A follow_up_question in the body
// scopes a follow-up round on top of the existing dashboard.
func (h *ResearchHandler) trigger(c echo.Context) error {
	in, err := h.initiativeOf(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	userID, _ := c.Get("user_id").(string)

	var req ResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// one active session per initiative
	sessions, err := h.store.ListSessions(ctx, in.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	for _, s := range sessions {
		if s.Status == core.SessionPending || s.Status == core.SessionRunning {
			return echo.NewHTTPError(http.StatusConflict, "research already in progress for this initiative")
		}
	}

	sessionID, err := h.store.CreateSession(ctx, in.ID, userID, strings.TrimSpace(req.FollowUpQuestion))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	telemetry.SessionsStarted.Inc()

	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		_ = h.orch.Run(runCtx, sessionID)
		if status, err := h.store.SessionStatus(runCtx, sessionID); err == nil {
			telemetry.SessionsFinished.WithLabelValues(status).Inc()
		}
	}()

	return c.JSON(http.StatusAccepted, IDResponse{ID: sessionID})
}

func (h *ResearchHandler) listSessions(c echo.Context) error {
	in, err := h.initiativeOf(c)
	if err != nil {
		return err
	}
	items, err := h.store.ListSessions(c.Request().Context(), in.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]map[string]interface{}, 0, len(items))
	for _, s := range items {
		out = append(out, sessionResponse(s))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ResearchHandler) getSession(c echo.Context) error {
	in, err := h.initiativeOf(c)
	if err != nil {
		return err
	}
	s, err := h.store.GetSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if s.InitiativeID != in.ID {
		return echo.NewHTTPError(http.StatusForbidden, "session does not belong to initiative")
	}
	return c.JSON(http.StatusOK, sessionResponse(s))
}

// stopSession requests an advisory stop. The orchestrator checks the
// persisted status between cycles, so in-flight paths still finish.
func (h *ResearchHandler) stopSession(c echo.Context) error {
	in, err := h.initiativeOf(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	s, err := h.store.GetSession(ctx, c.Param("session_id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if s.InitiativeID != in.ID {
		return echo.NewHTTPError(http.StatusForbidden, "session does not belong to initiative")
	}
	if err := h.store.RequestStop(ctx, s.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusConflict, "session already finished")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": core.SessionStopped})
}

func (h *ResearchHandler) stopPath(c echo.Context) error {
	if _, err := h.initiativeOf(c); err != nil {
		return err
	}
	if err := h.store.StopPath(c.Request().Context(), c.Param("path_id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusConflict, "path not active")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": core.PathStopped})
}

// streamSession delivers session progress over Server-Sent Events.
func (h *ResearchHandler) streamSession(c echo.Context) error {
	in, err := h.initiativeOf(c)
	if err != nil {
		return err
	}
	req := c.Request()
	ctx := req.Context()
	sessionID := c.Param("session_id")
	ctx, span := researchTracer.Start(ctx, "ResearchHandler.streamSession")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))
	c.SetRequest(req.WithContext(ctx))

	s, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if s.InitiativeID != in.ID {
		span.SetStatus(codes.Error, "session does not belong to initiative")
		return echo.NewHTTPError(http.StatusForbidden, "session does not belong to initiative")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		span.SetStatus(codes.Error, "streaming unsupported")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	// subscribe before the first write so no events are missed
	events, cancel, err := h.broker.Subscribe(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer cancel()
	telemetry.StreamSubscribers.Inc()
	defer telemetry.StreamSubscribers.Dec()

	send := func(ev stream.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send(stream.NewEvent(stream.EventConnected, map[string]interface{}{
		"session_id": sessionID,
		"status":     s.Status,
	})); err != nil {
		return nil
	}
	// nothing further will arrive for a finished session
	if s.Status == core.SessionCompleted || s.Status == core.SessionStopped || s.Status == core.SessionFailed {
		return nil
	}

	heartbeat := h.cfg.Stream.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	maxDuration := h.cfg.Stream.MaxStreamDuration
	if maxDuration <= 0 {
		maxDuration = 10 * time.Minute
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	deadline := time.NewTimer(maxDuration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			span.AddEvent("stream duration cap reached")
			return nil
		case <-ticker.C:
			if err := send(stream.NewEvent(stream.EventHeartbeat, nil)); err != nil {
				return nil
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := send(ev); err != nil {
				return nil
			}
			if ev.Terminal() {
				return nil
			}
		}
	}
}

func (h *ResearchHandler) dashboard(c echo.Context) error {
	in, err := h.initiativeOf(c)
	if err != nil {
		return err
	}
	d, err := h.store.GetDashboard(c.Request().Context(), in.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no dashboard yet; run research first")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":                        d.ID,
		"initiative_id":             d.InitiativeID,
		"content":                   json.RawMessage(d.Content),
		"portfolio_recommendations": json.RawMessage(d.Recommendations),
		"updated_at":                d.UpdatedAt,
	})
}

func (h *ResearchHandler) listFindings(c echo.Context) error {
	in, err := h.initiativeOf(c)
	if err != nil {
		return err
	}
	items, err := h.store.ListFindings(c.Request().Context(), in.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]map[string]interface{}, 0, len(items))
	for _, f := range items {
		out = append(out, map[string]interface{}{
			"id":               f.ID,
			"path_id":          f.PathID,
			"category":         f.Category,
			"content":          json.RawMessage(f.Content),
			"source_url":       f.SourceURL,
			"confidence_score": f.Confidence,
			"created_at":       f.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// searchFindings serves full-text queries against the in-memory
// finding index. Results are filtered to the initiative.
func (h *ResearchHandler) searchFindings(c echo.Context) error {
	in, err := h.initiativeOf(c)
	if err != nil {
		return err
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	limit := 10
	if v := strings.TrimSpace(c.QueryParam("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}
	hits, err := h.idx.Search(q, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]map[string]interface{}, 0, len(hits))
	for _, hit := range hits {
		if hit.Document.InitiativeID != in.ID {
			continue
		}
		out = append(out, map[string]interface{}{
			"id":         hit.Document.ID,
			"category":   hit.Document.Category,
			"summary":    hit.Document.Summary,
			"details":    hit.Document.Details,
			"source_url": hit.Document.SourceURL,
			"confidence": hit.Document.Confidence,
			"score":      hit.Score,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"query": q, "hits": out})
}

func sessionResponse(s store.Session) map[string]interface{} {
	out := map[string]interface{}{
		"id":            s.ID,
		"initiative_id": s.InitiativeID,
		"triggered_by":  s.TriggeredBy,
		"status":        s.Status,
	}
	if s.FollowUpQuestion != "" {
		out["follow_up_question"] = s.FollowUpQuestion
	}
	if s.StartedAt != nil {
		out["started_at"] = s.StartedAt
	}
	if s.CompletedAt != nil {
		out["completed_at"] = s.CompletedAt
	}
	if s.ErrorMessage != "" {
		out["error_message"] = s.ErrorMessage
	}
	return out
}
