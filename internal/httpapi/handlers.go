package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/ban-pick-server/internal/archive"
	"github.com/DoyleJ11/ban-pick-server/internal/hub"
	"github.com/DoyleJ11/ban-pick-server/pkg/types"
)

const Version = "1.0.0"

// DraftLister is the read side of the archive.
type DraftLister interface {
	Recent(ctx context.Context, limit int) ([]archive.Draft, error)
}

// RoomInspector answers room lookups the same way the socket does.
type RoomInspector interface {
	RoomInfo(ctx context.Context, code string) types.RoomInfo
}

type API struct {
	hub    *hub.Hub
	rooms  RoomInspector
	drafts DraftLister // nil when no archive is configured
	log    *zap.Logger
	now    func() time.Time
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind types.ErrorKind, msg string) {
	writeJSON(w, status, types.Error{Kind: kind, Message: msg})
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": a.now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "Ban-Pick Server",
		"version":     Version,
		"description": "Real-time two-player ban-pick draft server",
		"endpoints": map[string]string{
			"health": "/health",
			"info":   "/api/info",
			"stats":  "/api/stats",
			"rooms":  "/api/rooms",
			"drafts": "/api/drafts",
			"ws":     "/ws",
		},
		"schedule": a.hub.Schedule().Summary(),
	})
}

func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.hub.Statistics(r.Context()))
}

func (a *API) ListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.hub.RoomsInfo(r.Context()))
}

func (a *API) GetRoom(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "roomID"))
	info := a.rooms.RoomInfo(r.Context(), code)
	if !info.Exists {
		writeError(w, http.StatusNotFound, types.ErrRoomNotFound, "room not found: "+code)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// CreateRoomCode hands out a code no live room uses. The room itself is
// created by the first join.
func (a *API) CreateRoomCode(w http.ResponseWriter, r *http.Request) {
	code, err := a.hub.GenerateCode()
	if err != nil {
		a.log.Error("generate room code", zap.Error(err))
		writeError(w, http.StatusInternalServerError, types.ErrInternal, "failed to generate room code")
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Code string `json:"code"`
	}{Code: code})
}

func (a *API) RecentDrafts(w http.ResponseWriter, r *http.Request) {
	if a.drafts == nil {
		writeError(w, http.StatusNotFound, types.ErrInvalidRequest, "draft archive is not configured")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	drafts, err := a.drafts.Recent(r.Context(), limit)
	if err != nil {
		a.log.Error("list drafts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, types.ErrInternal, "failed to list drafts")
		return
	}
	writeJSON(w, http.StatusOK, drafts)
}
