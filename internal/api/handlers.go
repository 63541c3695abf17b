package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"rollback-duel/internal/host"
)

// DefaultEventLimit is how many events /api/events returns without ?limit.
const DefaultEventLimit = 20

// maxActionBody caps POST /api/actions bodies.
const maxActionBody = 4 << 10

// Handler methods for routerHandlers

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"matchId": h.host.MatchID(),
	})
}

func (h *routerHandlers) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.host.Snapshot())
}

func (h *routerHandlers) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	players := h.host.Players()
	writeJSON(w, map[string]any{
		"arenaId": h.host.ArenaID(),
		"players": players[:],
		"stats":   h.host.Stats(),
	})
}

func (h *routerHandlers) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := DefaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events := h.host.RecentEvents(limit)
	if events == nil {
		events = []host.LoggedEvent{}
	}
	writeJSON(w, events)
}

func (h *routerHandlers) handlePostAction(w http.ResponseWriter, r *http.Request) {
	var req ActionMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBody)).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Action.PlayerID == "" {
		writeError(w, "action.playerId is required", http.StatusBadRequest)
		return
	}

	tick := host.LiveTick
	if req.Tick != nil {
		if *req.Tick < 0 {
			writeError(w, "tick must not be negative", http.StatusBadRequest)
			return
		}
		tick = *req.Tick
	}

	if err := h.host.SubmitAt(req.Action, tick); err != nil {
		status := submitStatus(err)
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
			log.Printf("⚠️ Action from %s dropped: %v", req.Action.PlayerID, err)
		}
		writeError(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"accepted": true,
		"seq":      req.Action.Seq,
	})
}

// submitStatus maps host submission errors to HTTP status codes.
func submitStatus(err error) int {
	switch {
	case errors.Is(err, host.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, host.ErrWrongArena):
		return http.StatusNotFound
	case errors.Is(err, host.ErrUnknownPlayer):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
