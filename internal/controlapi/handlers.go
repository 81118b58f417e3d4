package controlapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/marmos91/s3block/internal/controlapi/auth"
	s3store "github.com/marmos91/s3block/store"
)

// statsTimeout bounds how long the /stats survey is allowed to run,
// preventing a slow backend from hanging the admin API.
const statsTimeout = 10 * time.Second

// handlers holds the collaborators every route needs: the assembled
// store and its geometry, plus the token service used to mint the
// bootstrap operator's own token on first login.
type handlers struct {
	store     s3store.Store
	geo       s3store.Config
	jwt       *auth.Service
	startedAt time.Time
}

// Liveness handles GET /health: the process is up.
func (h *handlers) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"service":    "s3block",
		"started_at": h.startedAt.UTC().Format(time.RFC3339),
		"uptime":     time.Since(h.startedAt).String(),
	}))
}

// Readiness handles GET /health/ready: the store is reachable enough to
// list blocks (exercises httpio without reading or writing a payload).
func (h *handlers) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
	defer cancel()

	if err := h.store.ListBlocks(ctx, func(uint32) error { return nil }); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"block_size": h.geo.BlockSize,
		"num_blocks": h.geo.NumBlocks,
		"read_only":  h.geo.ReadOnly,
	}))
}

// statsResponse reports aggregate occupancy, not per-layer internals:
// the Store interface deliberately doesn't expose cache/dirty counters
// above the layer that owns them, so this walks the public surface
// (ListBlocks/SurveyNonZero) instead of reaching into blockcache.
type statsResponse struct {
	BlockSize      uint32 `json:"block_size"`
	NumBlocks      uint32 `json:"num_blocks"`
	PresentBlocks  int    `json:"present_blocks"`
	NonZeroBlocks  int    `json:"non_zero_blocks"`
	ReadOnly       bool   `json:"read_only"`
}

// Stats handles GET /stats: aggregate occupancy counts.
func (h *handlers) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
	defer cancel()

	present := 0
	if err := h.store.ListBlocks(ctx, func(uint32) error {
		present++
		return nil
	}); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}

	nonZero := 0
	if err := h.store.SurveyNonZero(ctx, func(uint32) error {
		nonZero++
		return nil
	}); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, okResponse(statsResponse{
		BlockSize:     h.geo.BlockSize,
		NumBlocks:     h.geo.NumBlocks,
		PresentBlocks: present,
		NonZeroBlocks: nonZero,
		ReadOnly:      h.geo.ReadOnly,
	}))
}

// Login handles POST /admin/login: mints a token for the bootstrap
// operator. There is no password here (single-operator, config-gated
// admin surface) — possession of the admin listen address plus network
// access to it is the trust boundary; deployments that need stronger
// auth front this with their own reverse proxy.
func (h *handlers) Login(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		username = "admin"
	}
	token, expiresAt, err := h.jwt.IssueToken(username)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]interface{}{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   expiresAt,
	}))
}

// Flush handles POST /admin/flush: blocks until every acknowledged
// write is durable at httpio.
func (h *handlers) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Flush(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(nil))
}

// Survey handles GET /admin/survey: lists block indices currently known
// not to be all-zero, optionally bounded by ?limit=.
func (h *handlers) Survey(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid limit"))
			return
		}
		limit = n
	}

	indices := make([]uint32, 0)
	err := h.store.SurveyNonZero(r.Context(), func(idx uint32) error {
		if limit > 0 && len(indices) >= limit {
			return errSurveyLimitReached
		}
		indices = append(indices, idx)
		return nil
	})
	if err != nil && err != errSurveyLimitReached {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, okResponse(map[string]interface{}{
		"indices": indices,
		"count":   len(indices),
	}))
}

// errSurveyLimitReached stops SurveyNonZero's enumeration early once the
// caller-requested limit is hit; it never reaches the HTTP response.
var errSurveyLimitReached = &s3store.Error{Kind: s3store.KindOverflow, Op: "controlapi.Survey", Err: nil}
