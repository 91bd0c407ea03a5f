package vehicle

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	commonserver "github.com/CityParkLink/CityParkLink/internal/common/server"
	"github.com/google/uuid"
)

// Store handler 所需的最小存储面。*Repo 即实现。
type Store interface {
	Create(ctx context.Context, v *Vehicle) error
	ListByOwner(ctx context.Context, userID string) ([]Vehicle, error)
}

type HTTPHandler struct {
	store Store
}

func NewHTTPHandler(store Store) *HTTPHandler {
	return &HTTPHandler{store: store}
}

// Register 挂载车辆相关路由。
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/vehicles", h.handleList)
	mux.HandleFunc("POST /api/vehicles", h.handleCreate)
}

type vehiclePayload struct {
	ID          string `json:"id"`
	PlateNumber string `json:"plate_number"`
	VehicleType string `json:"vehicle_type,omitempty"`
	UserID      string `json:"user_id"`
}

func toPayload(v *Vehicle) vehiclePayload {
	return vehiclePayload{
		ID:          v.ID,
		PlateNumber: v.PlateNumber,
		VehicleType: v.VehicleType,
		UserID:      v.UserID,
	}
}

type createVehicleRequest struct {
	PlateNumber string `json:"plate_number"`
	VehicleType string `json:"vehicle_type"`
}

func (h *HTTPHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ai, ok := commonserver.AuthFromContext(r.Context())
	if !ok || strings.TrimSpace(ai.Subject) == "" {
		commonserver.WriteError(w, http.StatusUnauthorized, commonserver.CodeUnauthenticated, "missing auth")
		return
	}

	var req createVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		commonserver.WriteError(w, http.StatusBadRequest, commonserver.CodeInvalidRequest, "invalid request body")
		return
	}
	plate := strings.TrimSpace(req.PlateNumber)
	if plate == "" {
		commonserver.WriteError(w, http.StatusBadRequest, "plate_number_required", "plate_number required")
		return
	}

	v := &Vehicle{
		ID:          uuid.NewString(),
		PlateNumber: plate,
		VehicleType: strings.TrimSpace(req.VehicleType),
		UserID:      ai.Subject,
	}
	if err := h.store.Create(r.Context(), v); err != nil {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}
	commonserver.WriteJSON(w, http.StatusCreated, toPayload(v))
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ai, ok := commonserver.AuthFromContext(r.Context())
	if !ok || strings.TrimSpace(ai.Subject) == "" {
		commonserver.WriteError(w, http.StatusUnauthorized, commonserver.CodeUnauthenticated, "missing auth")
		return
	}

	vehicles, err := h.store.ListByOwner(r.Context(), ai.Subject)
	if err != nil {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}
	out := make([]vehiclePayload, 0, len(vehicles))
	for i := range vehicles {
		out = append(out, toPayload(&vehicles[i]))
	}
	commonserver.WriteJSON(w, http.StatusOK, out)
}
