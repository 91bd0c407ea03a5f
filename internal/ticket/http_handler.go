package ticket

import (
	"context"
	"net/http"
	"strings"
	"time"

	commonserver "github.com/CityParkLink/CityParkLink/internal/common/server"
)

// Store handler 所需的最小存储面。*Repo 即实现。
type Store interface {
	ListByOwner(ctx context.Context, userID string) ([]Ticket, error)
}

type HTTPHandler struct {
	store Store
}

func NewHTTPHandler(store Store) *HTTPHandler {
	return &HTTPHandler{store: store}
}

// Register 挂载 ticket 查询路由。
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tickets", h.handleList)
}

type ticketPayload struct {
	ID        string `json:"id"`
	VehicleID string `json:"vehicle_id"`
	SpotID    string `json:"spot_id"`
	CheckIn   string `json:"check_in"`
	CheckOut  string `json:"check_out,omitempty"`
}

func toPayload(t *Ticket) ticketPayload {
	p := ticketPayload{
		ID:        t.ID,
		VehicleID: t.VehicleID,
		SpotID:    t.SpotID,
		CheckIn:   t.CheckIn.Format(time.RFC3339),
	}
	if t.CheckOut != nil {
		p.CheckOut = t.CheckOut.Format(time.RFC3339)
	}
	return p
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ai, ok := commonserver.AuthFromContext(r.Context())
	if !ok || strings.TrimSpace(ai.Subject) == "" {
		commonserver.WriteError(w, http.StatusUnauthorized, commonserver.CodeUnauthenticated, "missing auth")
		return
	}

	tickets, err := h.store.ListByOwner(r.Context(), ai.Subject)
	if err != nil {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}
	out := make([]ticketPayload, 0, len(tickets))
	for i := range tickets {
		out = append(out, toPayload(&tickets[i]))
	}
	commonserver.WriteJSON(w, http.StatusOK, out)
}
