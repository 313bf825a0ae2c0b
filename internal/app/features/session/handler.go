// internal/app/features/session/handler.go

// Package session exposes the group-resolution endpoints device clients
// call after sign-in, app foreground, and whenever a push notification
// tells them their membership may have changed.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/musterapp/muster/internal/app/features/shared/respond"
	"github.com/musterapp/muster/internal/app/membership"
	"github.com/musterapp/muster/internal/app/system/auth"
	"github.com/musterapp/muster/internal/app/system/timeouts"

	"go.uber.org/zap"
)

// Handler runs reconciliations and streams resolution events.
type Handler struct {
	Reconciler *membership.Reconciler
	Hub        *membership.Hub
	Log        *zap.Logger
}

func NewHandler(rec *membership.Reconciler, hub *membership.Hub, logger *zap.Logger) *Handler {
	return &Handler{Reconciler: rec, Hub: hub, Log: logger}
}

// HandleResolve handles POST /session/resolve. It reconciles the
// signed-in user's group membership and returns the resolution. The
// call is idempotent; clients invoke it on every app start.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "sign in first")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	res := h.Reconciler.Resolve(ctx, user.ID)
	status := http.StatusOK
	if res.State == membership.StateTransient {
		status = http.StatusServiceUnavailable
	}
	respond.JSON(w, status, res)
}

// HandleEvents handles GET /session/events, a server-sent event stream
// of resolution updates for the signed-in user. Clients use it to react
// to evictions and deletions without polling.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "sign in first")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respond.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, cancel := h.Hub.Subscribe(16)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case res, open := <-ch:
			if !open {
				return
			}
			if res.UserID != user.ID {
				continue
			}
			if err := writeEvent(w, res); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, res membership.Resolution) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = w.Write(append(append([]byte("data: "), data...), '\n', '\n'))
	return err
}
