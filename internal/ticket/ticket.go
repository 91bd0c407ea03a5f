package ticket

import "time"

// Ticket 是 tickets 表的 GORM 模型：一辆车从入场到出场占用一个车位的记录。
// 出场后（CheckOut 非空）记录不可再变更，构成占用历史的审计轨迹。
type Ticket struct {
	ID        string     `gorm:"primaryKey;size:36"`
	VehicleID string     `gorm:"index;size:36;not null"`
	SpotID    string     `gorm:"index;size:36;not null"`
	CheckIn   time.Time  `gorm:"not null"`
	CheckOut  *time.Time // NULL 表示仍在场内
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
}

// Open 是否仍未出场。
func (t Ticket) Open() bool {
	return t.CheckOut == nil
}
