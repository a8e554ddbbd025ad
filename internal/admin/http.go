package admin

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/ItsCrafted/blooket-hacks/internal/errors"
	"github.com/ItsCrafted/blooket-hacks/internal/trace"
)

const maxRequestBody = 64 << 10

// Routes mounts the REST admin surface under /admin/ on mux, guarded by v.
func (c *Controller) Routes(mux *http.ServeMux, v *Verifier) {
	mux.Handle("GET /admin/bans", RequireToken(v, http.HandlerFunc(c.listBans)))
	mux.Handle("POST /admin/bans", RequireToken(v, http.HandlerFunc(c.addBan)))
	mux.Handle("DELETE /admin/bans/{id}", RequireToken(v, http.HandlerFunc(c.removeBan)))
	mux.Handle("GET /admin/words", RequireToken(v, http.HandlerFunc(c.listWords)))
	mux.Handle("POST /admin/words", RequireToken(v, http.HandlerFunc(c.addWord)))
	mux.Handle("DELETE /admin/words/{word}", RequireToken(v, http.HandlerFunc(c.removeWord)))
	mux.Handle("GET /admin/audit", RequireToken(v, http.HandlerFunc(c.listAudit)))
	mux.Handle("GET /admin/stats", RequireToken(v, http.HandlerFunc(c.getStats)))
	mux.Handle("PUT /admin/settings/vpn-check", RequireToken(v, http.HandlerFunc(c.setVPNCheck)))
}

// RequireToken rejects requests without a valid bearer token.
func RequireToken(v *Verifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := v.Verify(BearerToken(r.Header.Get("Authorization")))
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), claims.Subject)))
	})
}

func (c *Controller) listBans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"bans": c.Bans()})
}

func (c *Controller) addBan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if !decode(w, r, &body) {
		return
	}
	changed, err := c.Ban(r.Context(), body.ID)
	writeChanged(w, r, changed, err)
}

func (c *Controller) removeBan(w http.ResponseWriter, r *http.Request) {
	changed, err := c.Unban(r.Context(), r.PathValue("id"))
	writeChanged(w, r, changed, err)
}

func (c *Controller) listWords(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"words": c.Words()})
}

func (c *Controller) addWord(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Word string `json:"word"`
	}
	if !decode(w, r, &body) {
		return
	}
	changed, err := c.AddWord(r.Context(), body.Word)
	writeChanged(w, r, changed, err)
}

func (c *Controller) removeWord(w http.ResponseWriter, r *http.Request) {
	changed, err := c.RemoveWord(r.Context(), r.PathValue("word"))
	writeChanged(w, r, changed, err)
}

func (c *Controller) listAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, r, apperrors.New(apperrors.CodeInvalidArgument, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": c.Audit(limit)})
}

func (c *Controller) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Stats())
}

func (c *Controller) setVPNCheck(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Enabled == nil {
		writeError(w, r, apperrors.New(apperrors.CodeInvalidArgument, "enabled is required"))
		return
	}
	if err := c.SetReputationCheck(r.Context(), *body.Enabled); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": *body.Enabled})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v); err != nil {
		writeError(w, r, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid request body"))
		return false
	}
	return true
}

func writeChanged(w http.ResponseWriter, r *http.Request, changed bool, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": changed})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeInternal
	msg := "internal error"
	if ae, ok := apperrors.As(err); ok {
		code = ae.Code
		msg = ae.Message
	}
	status := HTTPStatus(code)
	if status >= 500 {
		trace.Logger(r.Context()).Error("admin request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg, "code": code.String()})
}

// HTTPStatus maps an error code to the status the REST surface answers with.
func HTTPStatus(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidArgument, apperrors.CodeFieldTooLong, apperrors.CodeFieldForbidden, apperrors.CodeFrameMalformed:
		return http.StatusBadRequest
	case apperrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.CodePermissionDenied:
		return http.StatusForbidden
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeUnavailable, apperrors.CodeConfigMissing:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
