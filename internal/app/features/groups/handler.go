// internal/app/features/groups/handler.go
package groups

import (
	"context"
	"errors"
	"net/http"

	"github.com/musterapp/muster/internal/app/features/shared/respond"
	"github.com/musterapp/muster/internal/app/groupops"
	groupstore "github.com/musterapp/muster/internal/app/store/groups"
	locationstore "github.com/musterapp/muster/internal/app/store/locations"
	"github.com/musterapp/muster/internal/app/system/auth"
	"github.com/musterapp/muster/internal/app/system/timeouts"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the group lifecycle endpoints.
type Handler struct {
	Ops       *groupops.Service
	Groups    *groupstore.Store
	Locations *locationstore.Store
	Log       *zap.Logger
}

func NewHandler(ops *groupops.Service, groups *groupstore.Store, locations *locationstore.Store, logger *zap.Logger) *Handler {
	return &Handler{Ops: ops, Groups: groups, Locations: locations, Log: logger}
}

type createRequest struct {
	Name string `json:"name"`
}

// HandleCreate handles POST /groups.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.CurrentUser(r)

	var req createRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	g, err := h.Ops.CreateCustom(ctx, req.Name, user.ID)
	if err != nil {
		if errors.Is(err, groupstore.ErrEmptyName) {
			respond.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Log.Error("group create failed", zap.Error(err), zap.String("user_id", user.ID))
		respond.Error(w, http.StatusInternalServerError, "could not create group")
		return
	}
	respond.JSON(w, http.StatusCreated, g)
}

type joinRequest struct {
	Code string `json:"code"`
}

// HandleJoin handles POST /groups/join.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.CurrentUser(r)

	var req joinRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	g, err := h.Ops.JoinByCode(ctx, req.Code, user.ID)
	if err != nil {
		if errors.Is(err, groupops.ErrInvalidCode) {
			respond.Error(w, http.StatusNotFound, err.Error())
			return
		}
		h.Log.Error("group join failed", zap.Error(err), zap.String("user_id", user.ID))
		respond.Error(w, http.StatusInternalServerError, "could not join group")
		return
	}
	respond.JSON(w, http.StatusOK, g)
}

// HandleGet handles GET /groups/{groupID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.CurrentUser(r)
	groupID := chi.URLParam(r, "groupID")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	g, err := h.Groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, groupstore.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, err.Error())
			return
		}
		h.Log.Error("group fetch failed", zap.Error(err), zap.String("group_id", groupID))
		respond.Error(w, http.StatusInternalServerError, "could not fetch group")
		return
	}
	if !g.HasMember(user.ID) {
		respond.Error(w, http.StatusForbidden, "you are not a member of this group")
		return
	}
	respond.JSON(w, http.StatusOK, g)
}

// HandleLeave handles POST /groups/{groupID}/leave.
func (h *Handler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.CurrentUser(r)
	groupID := chi.URLParam(r, "groupID")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if err := h.Ops.Leave(ctx, groupID, user.ID); err != nil {
		h.writeOpError(w, err, "could not leave group", groupID, user.ID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type kickRequest struct {
	UserID string `json:"user_id"`
}

// HandleKick handles POST /groups/{groupID}/kick.
func (h *Handler) HandleKick(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.CurrentUser(r)
	groupID := chi.URLParam(r, "groupID")

	var req kickRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		respond.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if err := h.Ops.Kick(ctx, groupID, user.ID, req.UserID); err != nil {
		h.writeOpError(w, err, "could not remove member", groupID, user.ID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete handles DELETE /groups/{groupID}. The scrub of member
// profiles runs under the group's advisory lock; a concurrent
// destructive operation surfaces as 409 and the client simply retries.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.CurrentUser(r)
	groupID := chi.URLParam(r, "groupID")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	if err := h.Ops.Delete(ctx, groupID, user.ID); err != nil {
		h.writeOpError(w, err, "could not delete group", groupID, user.ID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type locationRequest struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Status    string  `json:"status,omitempty"`
}

// HandleLocation handles PUT /groups/{groupID}/location, one position
// record per member.
func (h *Handler) HandleLocation(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.CurrentUser(r)
	groupID := chi.URLParam(r, "groupID")

	var req locationRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	g, err := h.Groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, groupstore.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, err.Error())
			return
		}
		h.Log.Error("group fetch failed", zap.Error(err), zap.String("group_id", groupID))
		respond.Error(w, http.StatusInternalServerError, "could not record location")
		return
	}
	if !g.HasMember(user.ID) {
		respond.Error(w, http.StatusForbidden, "you are not a member of this group")
		return
	}

	err = h.Locations.Upsert(ctx, locationstore.Location{
		GroupID:   groupID,
		UserID:    user.ID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Status:    req.Status,
	})
	if err != nil {
		h.Log.Error("location upsert failed", zap.Error(err),
			zap.String("group_id", groupID), zap.String("user_id", user.ID))
		respond.Error(w, http.StatusInternalServerError, "could not record location")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeOpError(w http.ResponseWriter, err error, fallback, groupID, userID string) {
	switch {
	case errors.Is(err, groupstore.ErrNotFound):
		respond.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, groupops.ErrNotLeader):
		respond.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, groupops.ErrSpecialGroup), errors.Is(err, groupops.ErrLeaderLeave):
		respond.Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, groupops.ErrBusy):
		respond.Error(w, http.StatusConflict, err.Error())
	default:
		h.Log.Error("group operation failed", zap.Error(err),
			zap.String("group_id", groupID), zap.String("user_id", userID))
		respond.Error(w, http.StatusInternalServerError, fallback)
	}
}
