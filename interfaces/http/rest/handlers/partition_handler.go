package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DigitalHistory-Lund/ToK-Reader/application/partition"
	"github.com/DigitalHistory-Lund/ToK-Reader/pkg/common"
	apperrors "github.com/DigitalHistory-Lund/ToK-Reader/pkg/errors"
)

// PartitionHandler exposes partition cache operations
type PartitionHandler struct {
	coordinator *partition.Coordinator
	logger      *zap.Logger
}

// NewPartitionHandler creates a new partition handler
func NewPartitionHandler(coordinator *partition.Coordinator, logger *zap.Logger) *PartitionHandler {
	return &PartitionHandler{coordinator: coordinator, logger: logger}
}

// LoadResponse reports where a load request ended up
type LoadResponse struct {
	Year     int                    `json:"year"`
	Resident bool                   `json:"resident"`
	State    partition.LoadingState `json:"state"`
}

// Load handles POST /partitions/{year}/load
func (h *PartitionHandler) Load(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	if _, err := h.coordinator.LoadPartition(r.Context(), year); err != nil {
		h.logger.Error("Partition load failed", zap.Int("year", year), zap.Error(err))
		respondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, LoadResponse{
		Year:     year,
		Resident: h.coordinator.IsResident(year),
		State:    h.coordinator.State(year),
	})
}

// Status handles GET /partitions/{year}/status
func (h *PartitionHandler) Status(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	common.RespondJSON(w, http.StatusOK, LoadResponse{
		Year:     year,
		Resident: h.coordinator.IsResident(year),
		State:    h.coordinator.State(year),
	})
}

// Stats handles GET /partitions/stats
func (h *PartitionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, h.coordinator.Stats())
}

// Evict handles DELETE /partitions/{year}
func (h *PartitionHandler) Evict(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	h.coordinator.Evict(year)
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"year":     year,
		"resident": h.coordinator.IsResident(year),
	})
}

// EvictAll handles DELETE /partitions
func (h *PartitionHandler) EvictAll(w http.ResponseWriter, r *http.Request) {
	h.coordinator.EvictAll()
	common.RespondJSON(w, http.StatusOK, h.coordinator.Stats())
}

// yearParam parses the {year} route parameter
func yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), "year must be an integer")
		return 0, false
	}
	return year, true
}

// respondAppError maps an application error onto the response envelope
func respondAppError(w http.ResponseWriter, err error) {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		common.RespondErrorInfo(w, appErr.HTTPStatus, &common.ErrorInfo{
			Code:         string(appErr.Type),
			Message:      appErr.Message,
			PartitionKey: appErr.PartitionKey,
			Details:      appErr.Details,
		})
		return
	}
	common.RespondError(w, http.StatusInternalServerError, string(apperrors.ErrorTypeInternal), err.Error())
}
