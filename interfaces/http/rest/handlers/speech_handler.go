package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DigitalHistory-Lund/ToK-Reader/application/traversal"
	"github.com/DigitalHistory-Lund/ToK-Reader/domain/speech"
	"github.com/DigitalHistory-Lund/ToK-Reader/pkg/common"
	apperrors "github.com/DigitalHistory-Lund/ToK-Reader/pkg/errors"
)

const (
	defaultContextWindow = 5
	maxContextWindow     = 50
	defaultChainCount    = 10
	maxChainCount        = 200
)

// SpeechHandler exposes record lookup and chain traversal
type SpeechHandler struct {
	traversal *traversal.Service
	logger    *zap.Logger
}

// NewSpeechHandler creates a new speech handler
func NewSpeechHandler(traversal *traversal.Service, logger *zap.Logger) *SpeechHandler {
	return &SpeechHandler{traversal: traversal, logger: logger}
}

// Get handles GET /speeches/{year}/{id}
func (h *SpeechHandler) Get(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	record, err := h.traversal.Record(r.Context(), year, chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, record)
}

// Context handles GET /speeches/{year}/{id}/context?before=&after=
func (h *SpeechHandler) Context(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	before := countParam(r, "before", defaultContextWindow, maxContextWindow)
	after := countParam(r, "after", defaultContextWindow, maxContextWindow)

	ctx, err := h.traversal.GetContext(r.Context(), year, chi.URLParam(r, "id"), before, after)
	if err != nil {
		respondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, ctx)
}

// Chain handles GET /speeches/{year}/{id}/chain?direction=&count=
func (h *SpeechHandler) Chain(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	dir, ok := directionParam(w, r)
	if !ok {
		return
	}

	count := countParam(r, "count", defaultChainCount, maxChainCount)

	records, err := h.traversal.FollowChain(r.Context(), year, chi.URLParam(r, "id"), dir, count)
	if err != nil {
		respondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, records)
}

// ExchangeStart handles GET /speeches/{year}/{id}/exchange-start
func (h *SpeechHandler) ExchangeStart(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	record, err := h.traversal.ExchangeStart(r.Context(), year, chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, record)
}

// AdjacentExchange handles GET /speeches/{year}/{id}/adjacent-exchange?direction=
func (h *SpeechHandler) AdjacentExchange(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	dir, ok := directionParam(w, r)
	if !ok {
		return
	}

	result, err := h.traversal.AdjacentExchange(r.Context(), year, chi.URLParam(r, "id"), dir)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if result == nil {
		common.RespondError(w, http.StatusNotFound, string(apperrors.ErrorTypeNotFound), "no adjacent exchange")
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// AdjacentTagged handles
// GET /speeches/{year}/{id}/adjacent-tagged?direction=&any_tag=&gender=
func (h *SpeechHandler) AdjacentTagged(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	dir, ok := directionParam(w, r)
	if !ok {
		return
	}

	pred := speech.TagPredicate{
		AnyTag: r.URL.Query().Get("any_tag") == "true",
		Gender: r.URL.Query().Get("gender"),
	}
	if !pred.AnyTag && pred.Gender == "" {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation),
			"any_tag or gender is required")
		return
	}

	result, err := h.traversal.AdjacentTagged(r.Context(), year, chi.URLParam(r, "id"), dir, pred)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if result == nil {
		common.RespondError(w, http.StatusNotFound, string(apperrors.ErrorTypeNotFound), "no matching record")
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// Boundary handles GET /speeches/{year}/boundary?direction=
func (h *SpeechHandler) Boundary(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	dir, ok := directionParam(w, r)
	if !ok {
		return
	}

	record, err := h.traversal.Boundary(r.Context(), year, dir)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if record == nil {
		common.RespondError(w, http.StatusNotFound, string(apperrors.ErrorTypeNotFound), "partition is empty")
		return
	}
	common.RespondJSON(w, http.StatusOK, record)
}

// directionParam parses and validates ?direction=
func directionParam(w http.ResponseWriter, r *http.Request) (speech.Direction, bool) {
	dir := speech.Direction(r.URL.Query().Get("direction"))
	if !dir.Valid() {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation),
			"direction must be 'prev' or 'next'")
		return "", false
	}
	return dir, true
}

// countParam parses a bounded positive integer query parameter
func countParam(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
