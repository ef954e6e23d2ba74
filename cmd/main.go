// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gapmap/internal/api"
	"gapmap/internal/app"
	"gapmap/internal/config"
	"gapmap/internal/heatmap"
	"gapmap/internal/locate"
	"gapmap/internal/logger"
	"gapmap/internal/middleware"
	"gapmap/internal/migrate"
	"gapmap/internal/store"
	"gapmap/internal/utils"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	cfg, err := config.Load()
	if err != nil {
		logger.L().Error("config_error", "err", err)
		os.Exit(1)
	}
	// 日志初始化
	l := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	l.Debug("config_api_base", "base", cfg.APIBase)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := api.Deps{Base: cfg.APIBase, Grid: heatmap.DefaultGridConfig(), TopN: cfg.GapTopN, Logger: l}

	if cfg.PostgresEnabled {
		db, err := utils.OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		l.Info("db_open_ok", "host", cfg.Postgres.Host, "db", cfg.Postgres.DB)
		if err := migrate.EnsureSchema(ctx, db, l); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		deps.Store = store.AttachDB(db.DB, "postgres", l)
	} else {
		l.Info("db_disabled")
	}

	var rc *redis.Client
	if cfg.RedisEnabled {
		if c, err := utils.OpenRedisFromConfig(ctx, cfg.Redis); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			rc = c
			defer rc.Close()
			deps.Redis = rc
			l.Info("redis_ping_ok")
		}
	} else {
		l.Info("redis_disabled")
	}

	gc, err := app.BuildGeocoding(cfg, rc, l)
	if err != nil {
		l.Error("geocoder_error", "err", err)
		os.Exit(1)
	}
	deps.Analyzer, err = app.BuildAnalyzer(cfg, gc.Geocoder, l)
	if err != nil {
		l.Error("analyzer_error", "err", err)
		os.Exit(1)
	}

	pm, err := app.BuildSources(cfg, l)
	if err != nil {
		l.Error("sources_error", "err", err)
		os.Exit(1)
	}
	pm.Start(ctx)
	deps.Places = pm

	if cfg.GeoIPCityDB != "" {
		loc, err := locate.Open(cfg.GeoIPCityDB)
		if err != nil {
			l.Error("geoip_open_error", "path", cfg.GeoIPCityDB, "err", err)
		} else {
			defer loc.Close()
			deps.Locator = loc
			l.Info("geoip_ready", "path", cfg.GeoIPCityDB)
		}
	}

	if gc.Offline != nil {
		deps.AdminToken = cfg.AdminToken
		deps.Boundaries = gc.Offline
		deps.BoundaryDir = cfg.RevGeoDataDir
	}
	mux := api.BuildRoutes(deps)

	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler, cfg.RateLimit)
	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}
	idle := make(chan struct{})
	go func() {
		defer close(idle)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil {
			l.Error("shutdown_error", "err", err)
		}
	}()

	if cfg.TLS.Enabled {
		tc, terr := utils.ServerTLS(cfg.TLS)
		if terr != nil {
			l.Error("tls_error", "err", terr)
			os.Exit(1)
		}
		s.TLSConfig = tc
		l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLS.CertFile)
		err = s.ListenAndServeTLS("", "")
	} else {
		l.Info("listening", "addr", cfg.Addr)
		err = s.ListenAndServe()
	}
	if !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		return
	}
	<-idle
	l.Info("server_stopped")
}
