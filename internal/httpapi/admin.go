package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/jeogo/casnos-sub001/internal/auth"
	"github.com/jeogo/casnos-sub001/internal/reset"
)

type loginRequest struct {
	Key string `json:"key"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.auth == nil || !h.auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, requestID(r), http.StatusUnauthorized, "missing_token", "admin token required")
			return
		}
		if err := h.auth.Verify(token); err != nil {
			writeError(w, requestID(r), http.StatusUnauthorized, "invalid_token", "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if h.auth == nil {
		h.fail(w, r, auth.ErrDisabled)
		return
	}
	token, expires, err := h.auth.Login(strings.TrimSpace(req.Key))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires})
}

func (h *Handler) handleResetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.reset.Status(r.Context())
	if err != nil {
		h.failAdmin(w, r, err)
		return
	}
	counts, err := h.queue.Counts(r.Context())
	if err != nil {
		h.failAdmin(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"statistics": counts,
	})
}

func (h *Handler) handleForceReset(w http.ResponseWriter, r *http.Request) {
	result, err := h.reset.Force(r.Context())
	if err != nil {
		h.failAdmin(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleResetConfig(w http.ResponseWriter, r *http.Request) {
	var patch reset.ConfigPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	cfg, err := h.reset.UpdateConfig(patch)
	if err != nil {
		h.failAdmin(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) handlePrintStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.printing.Stats())
}

func (h *Handler) handlePrintCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.printing.CleanupTempFiles()
	if err != nil {
		h.failAdmin(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queue.Counts(r.Context())
	if err != nil {
		h.failAdmin(w, r, err)
		return
	}
	online := 0
	if h.presence != nil {
		for _, entry := range h.presence.Snapshot() {
			if entry.IsOnline {
				online++
			}
		}
	}
	now := h.now()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds":    int64(now.Sub(h.started).Seconds()),
		"server_time":       now,
		"connected_clients": h.clients(),
		"online_devices":    online,
		"queue":             counts,
		"print":             h.printing.Stats(),
	})
}
