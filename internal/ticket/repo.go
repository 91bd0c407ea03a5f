package ticket

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Ticket, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var t Ticket
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// ListByOwner 列出某用户名下车辆的全部 ticket（含未关闭的）。
func (r *Repo) ListByOwner(ctx context.Context, userID string) ([]Ticket, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var tickets []Ticket
	err := r.db.WithContext(ctx).
		Joins("JOIN vehicles ON vehicles.id = tickets.vehicle_id").
		Where("vehicles.user_id = ?", userID).
		Order("tickets.check_in desc").
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}
