package parking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	commonserver "github.com/CityParkLink/CityParkLink/internal/common/server"
	"github.com/CityParkLink/CityParkLink/internal/ticket"
	"github.com/google/uuid"
)

// Engine 预订引擎面。*Service 即实现。
type Engine interface {
	Book(ctx context.Context, vehicleID, spotID, actorUserID string) (*ticket.Ticket, error)
	Checkout(ctx context.Context, ticketID, actorUserID string) (*ticket.Ticket, error)
}

// Registry 车位/停车场查询与管理面。*Repo 即实现。
type Registry interface {
	ListSpots(ctx context.Context, lotID string) ([]SpotSummary, error)
	CreateLotWithSpots(ctx context.Context, lot *ParkingLot, spots []*ParkingSpot) error
	DeleteLot(ctx context.Context, lotID string) error
}

type HTTPHandler struct {
	engine   Engine
	registry Registry
}

func NewHTTPHandler(engine Engine, registry Registry) *HTTPHandler {
	return &HTTPHandler{engine: engine, registry: registry}
}

// Register 挂载车位与预订相关路由。
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/spots", h.handleListSpots)
	mux.HandleFunc("POST /api/book", h.handleBook)
	mux.HandleFunc("PATCH /api/checkout/{id}", h.handleCheckout)
	mux.Handle("POST /api/lots", commonserver.RequireRoles(http.HandlerFunc(h.handleCreateLot), "admin"))
	mux.Handle("DELETE /api/lots/{id}", commonserver.RequireRoles(http.HandlerFunc(h.handleDeleteLot), "admin"))
}

func (h *HTTPHandler) handleListSpots(w http.ResponseWriter, r *http.Request) {
	lotID := strings.TrimSpace(r.URL.Query().Get("lot_id"))
	spots, err := h.registry.ListSpots(r.Context(), lotID)
	if err != nil {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}
	commonserver.WriteJSON(w, http.StatusOK, spots)
}

type bookRequest struct {
	VehicleID string `json:"vehicle_id"`
	SpotID    string `json:"spot_id"`
}

type bookResponse struct {
	Message  string `json:"message"`
	TicketID string `json:"ticket_id"`
	CheckIn  string `json:"check_in"`
}

func (h *HTTPHandler) handleBook(w http.ResponseWriter, r *http.Request) {
	ai, ok := commonserver.AuthFromContext(r.Context())
	if !ok || strings.TrimSpace(ai.Subject) == "" {
		commonserver.WriteError(w, http.StatusUnauthorized, commonserver.CodeUnauthenticated, "missing auth")
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		commonserver.WriteError(w, http.StatusBadRequest, commonserver.CodeInvalidRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.VehicleID) == "" || strings.TrimSpace(req.SpotID) == "" {
		commonserver.WriteError(w, http.StatusBadRequest, commonserver.CodeInvalidRequest, "vehicle_id/spot_id required")
		return
	}

	t, err := h.engine.Book(r.Context(), req.VehicleID, req.SpotID, ai.Subject)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	commonserver.WriteJSON(w, http.StatusCreated, bookResponse{
		Message:  "Spot booked",
		TicketID: t.ID,
		CheckIn:  t.CheckIn.Format(time.RFC3339),
	})
}

type checkoutResponse struct {
	Message  string `json:"message"`
	TicketID string `json:"ticket_id"`
	CheckOut string `json:"check_out"`
}

func (h *HTTPHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ai, ok := commonserver.AuthFromContext(r.Context())
	if !ok || strings.TrimSpace(ai.Subject) == "" {
		commonserver.WriteError(w, http.StatusUnauthorized, commonserver.CodeUnauthenticated, "missing auth")
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		commonserver.WriteError(w, http.StatusBadRequest, commonserver.CodeInvalidRequest, "id required")
		return
	}

	t, err := h.engine.Checkout(r.Context(), id, ai.Subject)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := checkoutResponse{
		Message:  "Checked out",
		TicketID: t.ID,
	}
	if t.CheckOut != nil {
		resp.CheckOut = t.CheckOut.Format(time.RFC3339)
	}
	commonserver.WriteJSON(w, http.StatusOK, resp)
}

type createLotRequest struct {
	Name        string   `json:"name"`
	Location    string   `json:"location"`
	SpotNumbers []string `json:"spot_numbers"`
}

func (h *HTTPHandler) handleCreateLot(w http.ResponseWriter, r *http.Request) {
	var req createLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		commonserver.WriteError(w, http.StatusBadRequest, commonserver.CodeInvalidRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		commonserver.WriteError(w, http.StatusBadRequest, "lot_name_required", "name required")
		return
	}

	lot := &ParkingLot{
		ID:       uuid.NewString(),
		Name:     name,
		Location: strings.TrimSpace(req.Location),
	}
	spots := make([]*ParkingSpot, 0, len(req.SpotNumbers))
	for _, n := range req.SpotNumbers {
		n = strings.TrimSpace(n)
		if n == "" {
			commonserver.WriteError(w, http.StatusBadRequest, "spot_number_required", "spot_number must not be empty")
			return
		}
		spots = append(spots, &ParkingSpot{
			ID:         uuid.NewString(),
			SpotNumber: n,
			Status:     StatusAvailable,
		})
	}

	if err := h.registry.CreateLotWithSpots(r.Context(), lot, spots); err != nil {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}

	commonserver.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":       lot.ID,
		"name":     lot.Name,
		"location": lot.Location,
		"spots":    len(spots),
	})
}

func (h *HTTPHandler) handleDeleteLot(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		commonserver.WriteError(w, http.StatusBadRequest, commonserver.CodeInvalidRequest, "id required")
		return
	}
	err := h.registry.DeleteLot(r.Context(), id)
	if errors.Is(err, ErrLotNotFound) {
		commonserver.WriteError(w, http.StatusNotFound, commonserver.CodeNotFound, err.Error())
		return
	}
	if err != nil {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeEngineError 预订引擎错误到 HTTP 状态码的映射。
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSpotUnavailable):
		commonserver.WriteError(w, http.StatusConflict, "spot_unavailable", "Spot unavailable")
	case errors.Is(err, ErrTicketClosedOrNotFound):
		commonserver.WriteError(w, http.StatusConflict, "ticket_closed_or_not_found", "Already checked out or not found")
	case errors.Is(err, ErrVehicleNotFound):
		commonserver.WriteError(w, http.StatusNotFound, "vehicle_not_found", "Vehicle not found")
	case errors.Is(err, ErrNotAuthorized):
		commonserver.WriteError(w, http.StatusForbidden, commonserver.CodePermissionDenied, "vehicle does not belong to you")
	default:
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
	}
}
