package parking

import "time"

// SpotStatus 车位状态枚举（持久化为字符串）。
type SpotStatus string

const (
	StatusAvailable SpotStatus = "available" // 空闲
	StatusOccupied  SpotStatus = "occupied"  // 占用中（存在未关闭 ticket）
)

// ParkingSpot 是 parking_spots 表的 GORM 模型。
// 不变量：Status == occupied 当且仅当恰有一张未关闭 ticket 指向该车位。
type ParkingSpot struct {
	ID         string     `gorm:"primaryKey;size:36"`
	SpotNumber string     `gorm:"size:32;not null"`
	Status     SpotStatus `gorm:"type:varchar(16);index;not null;default:'available'"`
	LotID      string     `gorm:"index;size:36;not null"`
	CreatedAt  time.Time  `gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime"`
}

// allowTransition 定义车位状态机的允许流转关系。
// 入场：available -> occupied；出场：occupied -> available。
var allowTransition = map[SpotStatus][]SpotStatus{
	StatusAvailable: {StatusOccupied},
	StatusOccupied:  {StatusAvailable},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
// 同状态不算流转（occupied -> occupied 即重复预订，必须拒绝）。
func CanTransition(from, to SpotStatus) bool {
	allowed, ok := allowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
