package main

import (
	"flag"
	"fmt"
	"net/http"

	"github.com/CityParkLink/CityParkLink/internal/clock"
	"github.com/CityParkLink/CityParkLink/internal/common/config"
	"github.com/CityParkLink/CityParkLink/internal/common/db"
	"github.com/CityParkLink/CityParkLink/internal/common/logger"
	"github.com/CityParkLink/CityParkLink/internal/common/server"
	"github.com/CityParkLink/CityParkLink/internal/common/tracing"
	"github.com/CityParkLink/CityParkLink/internal/parking"
	"github.com/CityParkLink/CityParkLink/internal/ticket"
	"github.com/CityParkLink/CityParkLink/internal/user"
	"github.com/CityParkLink/CityParkLink/internal/vehicle"
)

var (
	configPath  = flag.String("config", "configs/parking-service.json", "配置文件路径")
	consulKVKey = flag.String("config-from-consul", "", "从 Consul KV 读取配置的 key（非空时优先于 -config）")
	consulHost  = flag.String("consul-host", "localhost", "Consul 地址（仅 -config-from-consul 模式用）")
	consulPort  = flag.Int("consul-port", 8500, "Consul 端口（仅 -config-from-consul 模式用）")
)

func main() {
	flag.Parse()

	// 加载配置
	var cfg *config.Config
	var err error
	if *consulKVKey != "" {
		cfg, err = config.LoadConfigFromConsulKV(*consulHost, *consulPort, *consulKVKey)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	// 初始化数据库
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

	if err := gdb.AutoMigrate(
		&user.User{},
		&vehicle.Vehicle{},
		&parking.ParkingLot{},
		&parking.ParkingSpot{},
		&ticket.Ticket{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// 组装路由
	mux := http.NewServeMux()
	user.NewHTTPHandler(gdb, cfg.Auth).Register(mux)
	vehicle.NewHTTPHandler(vehicle.NewRepo(gdb)).Register(mux)
	ticket.NewHTTPHandler(ticket.NewRepo(gdb)).Register(mux)

	parkingRepo := parking.NewRepo(gdb)
	engine := parking.NewService(parkingRepo, clock.NewSystem())
	parking.NewHTTPHandler(engine, parkingRepo).Register(mux)

	// 启动统一的 HTTP 服务模板
	if err := server.RunHTTPServer(cfg, log, mux); err != nil {
		log.Fatalf("parking-service exited with error: %v", err)
	}
}
