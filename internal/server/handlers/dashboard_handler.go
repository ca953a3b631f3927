package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/asigest/internal/server/sse"
	"github.com/mamadbah2/asigest/internal/service/dashboard"
)

const defaultHeartbeat = 30 * time.Second

// DashboardService is the dashboard surface used by the HTTP layer.
type DashboardService interface {
	Current() dashboard.State
	Refresh(ctx context.Context) (dashboard.State, error)
}

// DashboardHandler serves the KPI dashboard as JSON and as an event stream.
type DashboardHandler struct {
	svc       DashboardService
	hub       *sse.Hub
	logger    *zap.Logger
	heartbeat time.Duration
}

// NewDashboardHandler constructs the HTTP handler adapter.
func NewDashboardHandler(svc DashboardService, hub *sse.Hub, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandler{svc: svc, hub: hub, logger: logger, heartbeat: defaultHeartbeat}
}

// Get returns the displayed state. Before the first successful cycle it
// answers 503 with the error of the last attempt, if any.
func (h *DashboardHandler) Get(c *gin.Context) {
	state := h.svc.Current()
	if state.Result == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "dashboard not available yet",
			"message": state.Error,
		})
		return
	}
	c.JSON(http.StatusOK, state)
}

// Refresh runs a cycle synchronously and returns the resulting state.
func (h *DashboardHandler) Refresh(c *gin.Context) {
	state, err := h.svc.Refresh(c.Request.Context())
	if err != nil {
		h.logger.Warn("manual dashboard refresh failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error": state.Error,
			"state": state,
		})
		return
	}
	c.JSON(http.StatusOK, state)
}

// Stream pushes every applied dashboard result as a Server-Sent Event.
func (h *DashboardHandler) Stream(c *gin.Context) {
	client := h.hub.Register()
	defer h.hub.Unregister(client.ID)

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, "connected", []byte(fmt.Sprintf(`{"client_id":%q}`, client.ID)))
	if state := h.svc.Current(); state.Result != nil {
		if data, err := json.Marshal(state.Result); err == nil {
			writeEvent(w, sse.EventDashboard, data)
		}
	}
	w.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			writeEvent(w, event.Type, event.Data)
			w.Flush()
		case <-heartbeat.C:
			_, _ = w.WriteString(": keepalive\n\n")
			w.Flush()
		}
	}
}

func writeEvent(w gin.ResponseWriter, event string, data []byte) {
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
