package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/CityParkLink/CityParkLink/internal/common/config"
	"github.com/CityParkLink/CityParkLink/internal/common/db"
	"github.com/CityParkLink/CityParkLink/internal/common/logger"
	"github.com/CityParkLink/CityParkLink/internal/parking"
	"github.com/CityParkLink/CityParkLink/internal/ticket"
	"github.com/CityParkLink/CityParkLink/internal/user"
	"github.com/CityParkLink/CityParkLink/internal/vehicle"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	configPath    = flag.String("config", "configs/parking-service.json", "配置文件路径")
	adminPassword = flag.String("admin-password", "admin123", "管理员初始密码")
	reset         = flag.Bool("reset", false, "先删除全部表再重建（开发环境用）")
)

// 开发环境种子数据：admin 账号、Lot A 停车场、A1~A10 车位。
func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	gdb, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	models := []interface{}{
		&user.User{},
		&vehicle.Vehicle{},
		&parking.ParkingLot{},
		&parking.ParkingSpot{},
		&ticket.Ticket{},
	}

	if *reset {
		if err := gdb.Migrator().DropTable(models...); err != nil {
			log.Fatalf("failed to drop tables: %v", err)
		}
		log.Warn("dropped all tables")
	}
	if err := gdb.AutoMigrate(models...); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	ctx := context.Background()

	if err := seedAdmin(ctx, gdb, *adminPassword); err != nil {
		log.Fatalf("failed to seed admin user: %v", err)
	}
	if err := seedLot(ctx, gdb); err != nil {
		log.Fatalf("failed to seed parking lot: %v", err)
	}

	log.Info("Seeded database.")
}

func seedAdmin(ctx context.Context, gdb *gorm.DB, password string) error {
	var count int64
	if err := gdb.WithContext(ctx).Model(&user.User{}).Where("username = ?", "admin").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	salt, err := user.GenerateSaltHex()
	if err != nil {
		return err
	}
	hash, err := user.HashPassword(password, salt)
	if err != nil {
		return err
	}

	admin := &user.User{
		ID:           uuid.NewString(),
		Username:     "admin",
		Email:        "admin@cityparklink.local",
		PasswordHash: hash,
		PasswordSalt: salt,
		Roles:        user.RolesJoin([]string{"user", "admin"}),
	}
	return gdb.WithContext(ctx).Create(admin).Error
}

func seedLot(ctx context.Context, gdb *gorm.DB) error {
	var count int64
	if err := gdb.WithContext(ctx).Model(&parking.ParkingLot{}).Where("name = ?", "Lot A").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	lot := &parking.ParkingLot{
		ID:       uuid.NewString(),
		Name:     "Lot A",
		Location: "Nairobi CBD",
	}
	spots := make([]*parking.ParkingSpot, 0, 10)
	for i := 1; i <= 10; i++ {
		spots = append(spots, &parking.ParkingSpot{
			ID:         uuid.NewString(),
			SpotNumber: fmt.Sprintf("A%d", i),
			Status:     parking.StatusAvailable,
		})
	}
	return parking.NewRepo(gdb).CreateLotWithSpots(ctx, lot, spots)
}
