package parking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CityParkLink/CityParkLink/internal/clock"
	"github.com/CityParkLink/CityParkLink/internal/ticket"
	"github.com/CityParkLink/CityParkLink/internal/vehicle"
	"github.com/google/uuid"
)

// ReservationStore 预订引擎所需的存储面。*Repo 即实现。
// 所有协调都经由存储层事务完成，引擎自身不持有进程内共享状态。
type ReservationStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetSpotForUpdate(ctx context.Context, spotID string) (*ParkingSpot, error)
	MarkSpotOccupied(ctx context.Context, spotID string) (int64, error)
	MarkSpotAvailable(ctx context.Context, spotID string) error
	GetVehicle(ctx context.Context, vehicleID string) (*vehicle.Vehicle, error)
	GetTicketForUpdate(ctx context.Context, ticketID string) (*ticket.Ticket, error)
	CloseTicket(ctx context.Context, ticketID string, at time.Time) (int64, error)
	CreateTicket(ctx context.Context, t *ticket.Ticket) error
}

// Service 封装车位预订的核心用例（不依赖 HTTP），便于复用和测试。
type Service struct {
	store ReservationStore
	clk   clock.Clock
}

func NewService(store ReservationStore, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Service{store: store, clk: clk}
}

// Book 预订车位：校验车位可用与车辆归属后，在同一事务内把车位置为
// occupied 并开出 ticket。
//
// 并发契约：车位行先以 FOR UPDATE 锁定，置位时再以
// “status 仍为 available” 作条件更新双重确认，因此同一车位的并发
// Book 恰有一个成功，其余以 ErrSpotUnavailable 失败，不留下半写状态。
func (s *Service) Book(ctx context.Context, vehicleID, spotID, actorUserID string) (*ticket.Ticket, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	vehicleID = strings.TrimSpace(vehicleID)
	spotID = strings.TrimSpace(spotID)
	actorUserID = strings.TrimSpace(actorUserID)
	if vehicleID == "" || spotID == "" {
		return nil, fmt.Errorf("vehicle_id/spot_id required")
	}
	if actorUserID == "" {
		return nil, ErrNotAuthorized
	}

	var out *ticket.Ticket
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		spot, err := s.store.GetSpotForUpdate(ctx, spotID)
		if err != nil {
			return err
		}
		if !CanTransition(spot.Status, StatusOccupied) {
			return ErrSpotUnavailable
		}

		v, err := s.store.GetVehicle(ctx, vehicleID)
		if err != nil {
			return err
		}
		if v.UserID != actorUserID {
			return ErrNotAuthorized
		}

		rows, err := s.store.MarkSpotOccupied(ctx, spotID)
		if err != nil {
			return err
		}
		if rows == 0 {
			// 锁外的并发写已抢占该车位
			return ErrSpotUnavailable
		}

		t := &ticket.Ticket{
			ID:        uuid.NewString(),
			VehicleID: v.ID,
			SpotID:    spot.ID,
			CheckIn:   s.clk.Now(),
		}
		if err := s.store.CreateTicket(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Checkout 关闭 ticket 并释放车位，同一事务内完成。
// 已关闭或不存在的 ticket 返回 ErrTicketClosedOrNotFound；ticket
// 所属车辆不归 actor 所有时返回 ErrNotAuthorized，车位不受影响。
func (s *Service) Checkout(ctx context.Context, ticketID, actorUserID string) (*ticket.Ticket, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	ticketID = strings.TrimSpace(ticketID)
	actorUserID = strings.TrimSpace(actorUserID)
	if ticketID == "" {
		return nil, fmt.Errorf("ticket_id required")
	}
	if actorUserID == "" {
		return nil, ErrNotAuthorized
	}

	var out *ticket.Ticket
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		t, err := s.store.GetTicketForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if !t.Open() {
			return ErrTicketClosedOrNotFound
		}

		v, err := s.store.GetVehicle(ctx, t.VehicleID)
		if err != nil {
			return err
		}
		if v.UserID != actorUserID {
			return ErrNotAuthorized
		}

		now := s.clk.Now()
		rows, err := s.store.CloseTicket(ctx, t.ID, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrTicketClosedOrNotFound
		}
		if err := s.store.MarkSpotAvailable(ctx, t.SpotID); err != nil {
			return err
		}

		t.CheckOut = &now
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
