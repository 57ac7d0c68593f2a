package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/DigitalHistory-Lund/ToK-Reader/application/search"
	"github.com/DigitalHistory-Lund/ToK-Reader/domain/speech"
	"github.com/DigitalHistory-Lund/ToK-Reader/pkg/common"
	apperrors "github.com/DigitalHistory-Lund/ToK-Reader/pkg/errors"
	"github.com/DigitalHistory-Lund/ToK-Reader/pkg/utils"
)

// SearchHandler exposes filtered search over a single partition
type SearchHandler struct {
	search *search.Service
	logger *zap.Logger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(search *search.Service, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{search: search, logger: logger}
}

// SearchResponse wraps results with their count
type SearchResponse struct {
	Results []speech.SearchResult `json:"results"`
	Count   int                   `json:"count"`
}

// Search handles POST /search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var criteria speech.SearchCriteria
	if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation),
			"invalid request body")
		return
	}

	if err := utils.ValidateStruct(criteria); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), err.Error())
		return
	}
	if criteria.DateFrom != nil && criteria.DateTo != nil && *criteria.DateFrom > *criteria.DateTo {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation),
			"date_from must not exceed date_to")
		return
	}

	results, err := h.search.Search(r.Context(), criteria)
	if err != nil {
		respondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, SearchResponse{Results: results, Count: len(results)})
}
