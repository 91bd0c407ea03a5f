package vehicle

import (
	"time"
)

// Vehicle 是 vehicles 表的 GORM 模型。
type Vehicle struct {
	ID          string    `gorm:"primaryKey;size:36"`
	PlateNumber string    `gorm:"index;size:32;not null"`
	VehicleType string    `gorm:"size:32"` // 可选：car / motorcycle / truck 等
	UserID      string    `gorm:"index;size:36;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}
