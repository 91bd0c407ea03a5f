package parking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CityParkLink/CityParkLink/internal/ticket"
	"github.com/CityParkLink/CityParkLink/internal/vehicle"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

type txKey struct{}

func txFromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(txKey{}).(*gorm.DB)
	return tx
}

// WithTx 在一个数据库事务内执行 fn；事务句柄通过 ctx 向下传递，
// 嵌套调用复用同一事务。fn 返回错误时整体回滚。
func (r *Repo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (r *Repo) dbFrom(ctx context.Context) *gorm.DB {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

// GetSpotForUpdate 以行级排他锁读取车位（SELECT ... FOR UPDATE）。
// 车位不存在时返回 ErrSpotUnavailable：对预订方而言两者等价。
func (r *Repo) GetSpotForUpdate(ctx context.Context, spotID string) (*ParkingSpot, error) {
	var s ParkingSpot
	err := r.dbFrom(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", spotID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSpotUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("get spot for update: %w", err)
	}
	return &s, nil
}

// MarkSpotOccupied 条件更新：仅当车位仍为 available 时置为 occupied。
// 返回受影响行数；0 表示并发下已被他人抢占。
func (r *Repo) MarkSpotOccupied(ctx context.Context, spotID string) (int64, error) {
	res := r.dbFrom(ctx).
		Model(&ParkingSpot{}).
		Where("id = ? AND status = ?", spotID, StatusAvailable).
		Update("status", StatusOccupied)
	if res.Error != nil {
		return 0, fmt.Errorf("mark spot occupied: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *Repo) MarkSpotAvailable(ctx context.Context, spotID string) error {
	err := r.dbFrom(ctx).
		Model(&ParkingSpot{}).
		Where("id = ?", spotID).
		Update("status", StatusAvailable).Error
	if err != nil {
		return fmt.Errorf("mark spot available: %w", err)
	}
	return nil
}

func (r *Repo) GetVehicle(ctx context.Context, vehicleID string) (*vehicle.Vehicle, error) {
	var v vehicle.Vehicle
	err := r.dbFrom(ctx).Where("id = ?", vehicleID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVehicleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	return &v, nil
}

// GetTicketForUpdate 以行级排他锁读取 ticket。
func (r *Repo) GetTicketForUpdate(ctx context.Context, ticketID string) (*ticket.Ticket, error) {
	var t ticket.Ticket
	err := r.dbFrom(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", ticketID).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTicketClosedOrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket for update: %w", err)
	}
	return &t, nil
}

// CloseTicket 条件更新：仅当 check_out 仍为 NULL 时写入出场时间。
func (r *Repo) CloseTicket(ctx context.Context, ticketID string, at time.Time) (int64, error) {
	res := r.dbFrom(ctx).
		Model(&ticket.Ticket{}).
		Where("id = ? AND check_out IS NULL", ticketID).
		Update("check_out", at)
	if res.Error != nil {
		return 0, fmt.Errorf("close ticket: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *Repo) CreateTicket(ctx context.Context, t *ticket.Ticket) error {
	if err := r.dbFrom(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

// SpotSummary 车位列表视图（含所属停车场名称）。
type SpotSummary struct {
	ID         string     `json:"id"`
	SpotNumber string     `json:"spot_number"`
	Status     SpotStatus `json:"status"`
	LotName    string     `json:"lot"`
}

// ListSpots 列出车位；lotID 非空时按停车场过滤。只读，无需加锁。
func (r *Repo) ListSpots(ctx context.Context, lotID string) ([]SpotSummary, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	q := r.db.WithContext(ctx).
		Table("parking_spots").
		Select("parking_spots.id, parking_spots.spot_number, parking_spots.status, parking_lots.name AS lot_name").
		Joins("LEFT JOIN parking_lots ON parking_lots.id = parking_spots.lot_id").
		Order("parking_lots.name, parking_spots.spot_number")
	if lotID != "" {
		q = q.Where("parking_spots.lot_id = ?", lotID)
	}
	var out []SpotSummary
	if err := q.Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("list spots: %w", err)
	}
	return out, nil
}

func (r *Repo) GetSpot(ctx context.Context, spotID string) (*ParkingSpot, error) {
	var s ParkingSpot
	err := r.dbFrom(ctx).Where("id = ?", spotID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSpotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get spot: %w", err)
	}
	return &s, nil
}

// CreateLotWithSpots 创建停车场及其车位（一个事务）。
func (r *Repo) CreateLotWithSpots(ctx context.Context, lot *ParkingLot, spots []*ParkingSpot) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		if err := r.dbFrom(ctx).Create(lot).Error; err != nil {
			return fmt.Errorf("create lot: %w", err)
		}
		for _, s := range spots {
			s.LotID = lot.ID
			if s.Status == "" {
				s.Status = StatusAvailable
			}
			if err := r.dbFrom(ctx).Create(s).Error; err != nil {
				return fmt.Errorf("create spot: %w", err)
			}
		}
		return nil
	})
}

// DeleteLot 删除停车场并级联清理：车位上的 ticket、车位、停车场，
// 全部在同一事务内完成。
func (r *Repo) DeleteLot(ctx context.Context, lotID string) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		var spotIDs []string
		if err := r.dbFrom(ctx).Model(&ParkingSpot{}).Where("lot_id = ?", lotID).Pluck("id", &spotIDs).Error; err != nil {
			return err
		}
		if len(spotIDs) > 0 {
			if err := r.dbFrom(ctx).Where("spot_id IN ?", spotIDs).Delete(&ticket.Ticket{}).Error; err != nil {
				return err
			}
			if err := r.dbFrom(ctx).Where("lot_id = ?", lotID).Delete(&ParkingSpot{}).Error; err != nil {
				return err
			}
		}
		res := r.dbFrom(ctx).Where("id = ?", lotID).Delete(&ParkingLot{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrLotNotFound
		}
		return nil
	})
}
