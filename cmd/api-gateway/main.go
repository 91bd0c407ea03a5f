package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CityParkLink/CityParkLink/internal/common/config"
	"github.com/CityParkLink/CityParkLink/internal/common/discovery"
	"github.com/CityParkLink/CityParkLink/internal/common/logger"
	"github.com/CityParkLink/CityParkLink/internal/common/middleware"
	"github.com/CityParkLink/CityParkLink/internal/common/server"
)

var (
	configPath = flag.String("config", "configs/api-gateway.json", "配置文件路径")
)

// gateway 反向代理入口：限流 -> 熔断 -> Consul 选址 -> 转发。
type gateway struct {
	picker  *discovery.Picker
	limiter middleware.RateLimiter
	breaker *middleware.CircuitBreaker
	log     logger.Logger
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.limiter.Allow(r.Context()) {
		server.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
		return
	}

	served := false
	err := g.breaker.Call(r.Context(), func() error {
		addr, err := g.picker.Pick()
		if err != nil {
			return err
		}

		target := &url.URL{Scheme: "http", Host: addr}
		var proxyErr error
		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			proxyErr = err
			server.WriteError(w, http.StatusBadGateway, "upstream_error", "upstream request failed")
		}

		served = true
		proxy.ServeHTTP(w, r)
		return proxyErr
	})
	if err != nil && !served {
		// 熔断开启或无健康实例，请求未到达上游
		if errors.Is(err, middleware.ErrCircuitOpen) {
			g.log.Warnf("circuit open, rejecting %s %s", r.Method, r.URL.Path)
		} else {
			g.log.Warnf("no upstream for %s %s: %v", r.Method, r.URL.Path, err)
		}
		server.WriteError(w, http.StatusServiceUnavailable, "upstream_unavailable", "service unavailable")
	}
}

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

	consulClient, err := discovery.NewConsulClient(cfg.Consul.Host, cfg.Consul.Port)
	if err != nil {
		log.Fatalf("failed to connect to Consul: %v", err)
	}

	gw := &gateway{
		picker:  discovery.NewPicker(consulClient, cfg.Gateway.UpstreamService),
		limiter: middleware.NewTokenBucket(cfg.Gateway.RateCapacity, cfg.Gateway.RateRefill),
		breaker: middleware.NewCircuitBreaker(
			cfg.Gateway.UpstreamService,
			cfg.Gateway.BreakerFailures,
			time.Duration(cfg.Gateway.BreakerResetSec)*time.Second,
		),
		log: log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/", gw)

	srv := &http.Server{
		Addr:              cfg.Gateway.Listen,
		Handler:           server.Chain(mux, server.Recovery(log), server.AccessLog(log)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Infof("api-gateway starting on %s, upstream=%s", cfg.Gateway.Listen, cfg.Gateway.UpstreamService)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("received signal %v, shutting down...", sig)
	case err := <-serveErr:
		if err != nil {
			log.Fatalf("api-gateway exited with error: %v", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("http shutdown timeout, forcing close: %v", err)
		_ = srv.Close()
		return
	}
	log.Info("api-gateway stopped gracefully")
}
