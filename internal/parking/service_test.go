package parking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CityParkLink/CityParkLink/internal/clock"
	"github.com/CityParkLink/CityParkLink/internal/ticket"
	"github.com/CityParkLink/CityParkLink/internal/vehicle"
)

// fakeStore 内存实现；WithTx 用互斥锁串行化，模拟数据库的可串行化事务。
type fakeStore struct {
	mu       sync.Mutex
	spots    map[string]*ParkingSpot
	vehicles map[string]*vehicle.Vehicle
	tickets  map[string]*ticket.Ticket
}

func newFakeStore(spots []*ParkingSpot, vehicles []*vehicle.Vehicle) *fakeStore {
	f := &fakeStore{
		spots:    make(map[string]*ParkingSpot),
		vehicles: make(map[string]*vehicle.Vehicle),
		tickets:  make(map[string]*ticket.Ticket),
	}
	for _, s := range spots {
		f.spots[s.ID] = s
	}
	for _, v := range vehicles {
		f.vehicles[v.ID] = v
	}
	return f
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx)
}

func (f *fakeStore) GetSpotForUpdate(_ context.Context, spotID string) (*ParkingSpot, error) {
	s, ok := f.spots[spotID]
	if !ok {
		return nil, ErrSpotUnavailable
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) MarkSpotOccupied(_ context.Context, spotID string) (int64, error) {
	s, ok := f.spots[spotID]
	if !ok || s.Status != StatusAvailable {
		return 0, nil
	}
	s.Status = StatusOccupied
	return 1, nil
}

func (f *fakeStore) MarkSpotAvailable(_ context.Context, spotID string) error {
	if s, ok := f.spots[spotID]; ok {
		s.Status = StatusAvailable
	}
	return nil
}

func (f *fakeStore) GetVehicle(_ context.Context, vehicleID string) (*vehicle.Vehicle, error) {
	v, ok := f.vehicles[vehicleID]
	if !ok {
		return nil, ErrVehicleNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeStore) GetTicketForUpdate(_ context.Context, ticketID string) (*ticket.Ticket, error) {
	t, ok := f.tickets[ticketID]
	if !ok {
		return nil, ErrTicketClosedOrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) CloseTicket(_ context.Context, ticketID string, at time.Time) (int64, error) {
	t, ok := f.tickets[ticketID]
	if !ok || t.CheckOut != nil {
		return 0, nil
	}
	out := at
	t.CheckOut = &out
	return 1, nil
}

func (f *fakeStore) CreateTicket(_ context.Context, t *ticket.Ticket) error {
	cp := *t
	f.tickets[t.ID] = &cp
	return nil
}

// openTicketsFor 统计指向某车位的未关闭 ticket 数。
func (f *fakeStore) openTicketsFor(spotID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickets {
		if t.SpotID == spotID && t.CheckOut == nil {
			n++
		}
	}
	return n
}

func (f *fakeStore) spotStatus(spotID string) SpotStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spots[spotID].Status
}

func testFixtures() ([]*ParkingSpot, []*vehicle.Vehicle) {
	spots := []*ParkingSpot{
		{ID: "s-1", SpotNumber: "A1", Status: StatusAvailable, LotID: "lot-1"},
		{ID: "s-2", SpotNumber: "A2", Status: StatusOccupied, LotID: "lot-1"},
	}
	vehicles := []*vehicle.Vehicle{
		{ID: "v-1", PlateNumber: "KAA 001A", UserID: "u-1"},
		{ID: "v-2", PlateNumber: "KBB 002B", UserID: "u-2"},
	}
	return spots, vehicles
}

func TestBookAndCheckoutRoundTrip(t *testing.T) {
	spots, vehicles := testFixtures()
	store := newFakeStore(spots, vehicles)
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	svc := NewService(store, clock.NewFixed(now))

	tk, err := svc.Book(context.Background(), "v-1", "s-1", "u-1")
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if tk.ID == "" {
		t.Fatalf("expected ticket id")
	}
	if !tk.CheckIn.Equal(now) {
		t.Fatalf("check_in mismatch: %v", tk.CheckIn)
	}
	if got := store.spotStatus("s-1"); got != StatusOccupied {
		t.Fatalf("expected spot occupied, got %s", got)
	}
	if n := store.openTicketsFor("s-1"); n != 1 {
		t.Fatalf("expected 1 open ticket, got %d", n)
	}

	// 同一车位再订，必须冲突且不产生新 ticket
	if _, err := svc.Book(context.Background(), "v-1", "s-1", "u-1"); !errors.Is(err, ErrSpotUnavailable) {
		t.Fatalf("expected ErrSpotUnavailable, got %v", err)
	}
	if n := store.openTicketsFor("s-1"); n != 1 {
		t.Fatalf("expected still 1 open ticket, got %d", n)
	}

	closed, err := svc.Checkout(context.Background(), tk.ID, "u-1")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if closed.CheckOut == nil {
		t.Fatalf("expected check_out set")
	}
	if closed.CheckOut.Before(closed.CheckIn) {
		t.Fatalf("expected check_in <= check_out")
	}
	if got := store.spotStatus("s-1"); got != StatusAvailable {
		t.Fatalf("expected spot available after checkout, got %s", got)
	}
	if n := store.openTicketsFor("s-1"); n != 0 {
		t.Fatalf("expected 0 open tickets, got %d", n)
	}

	// 重复 checkout 必须失败且不影响车位
	if _, err := svc.Checkout(context.Background(), tk.ID, "u-1"); !errors.Is(err, ErrTicketClosedOrNotFound) {
		t.Fatalf("expected ErrTicketClosedOrNotFound, got %v", err)
	}
	if got := store.spotStatus("s-1"); got != StatusAvailable {
		t.Fatalf("expected spot untouched, got %s", got)
	}
}

func TestBookOccupiedSpotFails(t *testing.T) {
	spots, vehicles := testFixtures()
	store := newFakeStore(spots, vehicles)
	svc := NewService(store, nil)

	if _, err := svc.Book(context.Background(), "v-1", "s-2", "u-1"); !errors.Is(err, ErrSpotUnavailable) {
		t.Fatalf("expected ErrSpotUnavailable, got %v", err)
	}
	if n := store.openTicketsFor("s-2"); n != 0 {
		t.Fatalf("expected no ticket created, got %d", n)
	}
}

func TestBookUnknownSpotFails(t *testing.T) {
	spots, vehicles := testFixtures()
	svc := NewService(newFakeStore(spots, vehicles), nil)

	if _, err := svc.Book(context.Background(), "v-1", "s-404", "u-1"); !errors.Is(err, ErrSpotUnavailable) {
		t.Fatalf("expected ErrSpotUnavailable for unknown spot, got %v", err)
	}
}

func TestBookUnknownVehicleFails(t *testing.T) {
	spots, vehicles := testFixtures()
	store := newFakeStore(spots, vehicles)
	svc := NewService(store, nil)

	if _, err := svc.Book(context.Background(), "v-404", "s-1", "u-1"); !errors.Is(err, ErrVehicleNotFound) {
		t.Fatalf("expected ErrVehicleNotFound, got %v", err)
	}
	if got := store.spotStatus("s-1"); got != StatusAvailable {
		t.Fatalf("expected spot unchanged on failure, got %s", got)
	}
}

func TestBookCrossUserRejected(t *testing.T) {
	spots, vehicles := testFixtures()
	store := newFakeStore(spots, vehicles)
	svc := NewService(store, nil)

	// v-2 属于 u-2，u-1 不能用它订位
	if _, err := svc.Book(context.Background(), "v-2", "s-1", "u-1"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if got := store.spotStatus("s-1"); got != StatusAvailable {
		t.Fatalf("expected spot unchanged, got %s", got)
	}
	if n := store.openTicketsFor("s-1"); n != 0 {
		t.Fatalf("expected no ticket, got %d", n)
	}
}

func TestCheckoutCrossUserRejected(t *testing.T) {
	spots, vehicles := testFixtures()
	store := newFakeStore(spots, vehicles)
	svc := NewService(store, nil)

	tk, err := svc.Book(context.Background(), "v-1", "s-1", "u-1")
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	if _, err := svc.Checkout(context.Background(), tk.ID, "u-2"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if got := store.spotStatus("s-1"); got != StatusOccupied {
		t.Fatalf("expected spot still occupied, got %s", got)
	}
	if n := store.openTicketsFor("s-1"); n != 1 {
		t.Fatalf("expected ticket still open, got %d", n)
	}
}

func TestCheckoutUnknownTicketFails(t *testing.T) {
	spots, vehicles := testFixtures()
	svc := NewService(newFakeStore(spots, vehicles), nil)

	if _, err := svc.Checkout(context.Background(), "t-404", "u-1"); !errors.Is(err, ErrTicketClosedOrNotFound) {
		t.Fatalf("expected ErrTicketClosedOrNotFound, got %v", err)
	}
}

// 同一可用车位上的并发 Book：恰有一个成功，其余 ErrSpotUnavailable，
// 事后恰有一张未关闭 ticket。
func TestConcurrentBookSingleWinner(t *testing.T) {
	spots, vehicles := testFixtures()
	store := newFakeStore(spots, vehicles)
	svc := NewService(store, nil)

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), "v-1", "s-1", "u-1")
		}(i)
	}
	wg.Wait()

	won := 0
	for i, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSpotUnavailable):
		default:
			t.Fatalf("worker %d: unexpected error %v", i, err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", won)
	}
	if n := store.openTicketsFor("s-1"); n != 1 {
		t.Fatalf("expected exactly 1 open ticket, got %d", n)
	}
	if got := store.spotStatus("s-1"); got != StatusOccupied {
		t.Fatalf("expected spot occupied, got %s", got)
	}
}
