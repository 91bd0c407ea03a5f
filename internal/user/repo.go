package user

import (
	"context"
	"fmt"

	"github.com/CityParkLink/CityParkLink/internal/parking"
	"github.com/CityParkLink/CityParkLink/internal/ticket"
	"github.com/CityParkLink/CityParkLink/internal/vehicle"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, u *User) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repo) FindByUsername(ctx context.Context, username string) (*User, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var u User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var u User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) FindByID(ctx context.Context, id string) (*User, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var u User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) List(ctx context.Context, offset, limit int) ([]User, int64, error) {
	if r == nil || r.db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []User
	if err := r.db.WithContext(ctx).Order("created_at desc").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Delete 删除用户并级联清理：
// - 用户名下车辆的未关闭 ticket 所占车位恢复 available（保持占用不变量）
// - 删除这些车辆的全部 ticket
// - 删除车辆，最后删除用户
// 全部在同一事务内完成。
func (r *Repo) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var vehicleIDs []string
		if err := tx.Model(&vehicle.Vehicle{}).Where("user_id = ?", id).Pluck("id", &vehicleIDs).Error; err != nil {
			return err
		}

		if len(vehicleIDs) > 0 {
			var spotIDs []string
			if err := tx.Model(&ticket.Ticket{}).
				Where("vehicle_id IN ? AND check_out IS NULL", vehicleIDs).
				Pluck("spot_id", &spotIDs).Error; err != nil {
				return err
			}
			if len(spotIDs) > 0 {
				if err := tx.Model(&parking.ParkingSpot{}).
					Where("id IN ?", spotIDs).
					Update("status", parking.StatusAvailable).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("vehicle_id IN ?", vehicleIDs).Delete(&ticket.Ticket{}).Error; err != nil {
				return err
			}
			if err := tx.Where("user_id = ?", id).Delete(&vehicle.Vehicle{}).Error; err != nil {
				return err
			}
		}

		res := tx.Where("id = ?", id).Delete(&User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
