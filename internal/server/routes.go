package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	coreactor "github.com/evdriver/evdriver/internal/core/actor"
	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/propertystore"
	"github.com/evdriver/evdriver/internal/core/service"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	e.GET("/api/status", s.GetStatusHandler)
	e.POST("/api/mode", s.PostModeHandler)
	e.POST("/api/startstop", s.PostStartStopHandler)
	e.POST("/api/set_current", s.PostSetCurrentHandler)
	e.GET("/api/config", s.GetConfigHandler)
	e.GET("/api/events", s.GetEventsHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

// statusPropertyView is the JSON shape of a single Property Store entry
// in the /api/status response: the value plus how long ago it changed,
// so a stale Modbus link shows up as a growing stale_ms rather than a
// silently frozen number.
type statusPropertyView struct {
	Value    any    `json:"value"`
	Revision uint64 `json:"revision"`
	StaleMs  int64  `json:"stale_ms"`
}

// GetStatusHandler answers spec.md §6's /api/status: the Property Store's
// full snapshot (one entry per published path, annotated with staleness)
// plus the Control Engine's Intent and open-session summary, which the
// Property Store does not carry on its own.
func (s *Server) GetStatusHandler(c echo.Context) error {
	now := time.Now()
	snapshot := s.props.Snapshot()
	properties := make(map[string]statusPropertyView, len(snapshot))
	for path, entry := range snapshot {
		properties[path] = statusPropertyView{
			Value:    entry.Value,
			Revision: entry.Revision,
			StaleMs:  now.Sub(entry.ChangedAt).Milliseconds(),
		}
	}

	res, err := s.rootContext.RequestFuture(s.controlEngine, coreactor.StatusQueryRequest{}, 3*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "control engine unavailable"})
	}
	status, ok := res.(coreactor.StatusQueryResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "unexpected control engine response"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"properties":     properties,
		"intent":         status.Intent,
		"open_session":   status.OpenSession,
		"unacknowledged": status.Unacknowledged,
	})
}

type modeRequest struct {
	Mode any `json:"mode"`
}

// PostModeHandler applies spec.md §4.3's SetMode command. Validation runs
// synchronously against service.NormalizeMode so a bad payload gets an
// immediate 400 instead of a silently-dropped, asynchronously-rejected
// command; the command still carries Raw, and the Control Engine
// normalises it again when it applies it.
func (s *Server) PostModeHandler(c echo.Context) error {
	var req modeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if _, err := service.NormalizeMode(req.Mode); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	s.rootContext.Send(s.controlEngine, domain.IncomingCommand{Command: domain.SetMode{Raw: req.Mode}})
	return c.NoContent(http.StatusAccepted)
}

type startStopRequest struct {
	StartStop any `json:"start_stop"`
}

func (s *Server) PostStartStopHandler(c echo.Context) error {
	var req startStopRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if _, err := service.NormalizeStartStop(req.StartStop); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	s.rootContext.Send(s.controlEngine, domain.IncomingCommand{Command: domain.SetStartStop{Raw: req.StartStop}})
	return c.NoContent(http.StatusAccepted)
}

type setCurrentRequest struct {
	Amps float64 `json:"amps"`
}

// PostSetCurrentHandler applies spec.md §4.3's SetCurrent command.
// Out-of-bounds amps are not rejected: NormalizeSetCurrent clamps them
// and the Control Engine logs the resulting policy notice, so the 202
// here reports acceptance of the command, not the clamp outcome.
func (s *Server) PostSetCurrentHandler(c echo.Context) error {
	var req setCurrentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	s.rootContext.Send(s.controlEngine, domain.IncomingCommand{Command: domain.SetCurrent{Amps: req.Amps}})
	return c.NoContent(http.StatusAccepted)
}

// GetConfigHandler returns the running configuration with MQTT
// credentials redacted. Accepting config changes at runtime is out of
// scope (spec.md's Non-goals); this is read-only.
func (s *Server) GetConfigHandler(c echo.Context) error {
	redacted := s.cfg
	if redacted.MQTT.Username != "" {
		redacted.MQTT.Username = "***"
	}
	if redacted.MQTT.Password != "" {
		redacted.MQTT.Password = "***"
	}
	return c.JSON(http.StatusOK, redacted)
}

// GetEventsHandler streams Property Store changes as Server-Sent Events,
// one "path: value" JSON object per coalesced change, per spec.md §6's
// /api/events. echo has no SSE helper of its own, so this writes
// directly to the underlying http.ResponseWriter/Flusher the way a
// stdlib SSE handler would.
func (s *Server) GetEventsHandler(c echo.Context) error {
	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	sub := propertystore.NewSubscriber(s.props.Stream())
	defer sub.Close(s.props.Stream())

	ctx := c.Request().Context()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				entry, ok := sub.TryNext()
				if !ok {
					break
				}
				if err := writeSSEEvent(w, entry); err != nil {
					return nil
				}
			}
			w.Flush()
		}
	}
}

// sseEvent is the JSON payload of one /api/events message.
type sseEvent struct {
	Path      string `json:"path"`
	Value     any    `json:"value"`
	Revision  uint64 `json:"revision"`
	ChangedAt string `json:"changed_at"`
}

func writeSSEEvent(w http.ResponseWriter, entry propertystore.Entry) error {
	payload, err := json.Marshal(sseEvent{
		Path:      entry.Path,
		Value:     entry.Value,
		Revision:  entry.Revision,
		ChangedAt: entry.ChangedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
