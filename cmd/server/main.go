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

	"github.com/sirupsen/logrus"

	"listingmod/internal/api"
	"listingmod/internal/auth"
	"listingmod/internal/config"
	"listingmod/internal/db"
	"listingmod/internal/logging"
	"listingmod/internal/notify"
	"listingmod/internal/service"
	"listingmod/internal/store"
	"listingmod/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.WithFields(logrus.Fields{"version": version.Current().Version, "db_driver": cfg.DBDriver}).Info("starting")

	sqdb, err := db.Open(db.Options{
		Driver:      cfg.DBDriver,
		DSN:         cfg.DBDSN,
		Path:        cfg.DBPath,
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer sqdb.Close()
	if err := db.ApplyMigrations(sqdb.DB, filepath.Join(cfg.MigrationsDir, db.Dialect(cfg.DBDriver))); err != nil {
		log.WithError(err).Fatal("migration")
	}

	events := notify.NewDispatcher(notify.LogSender{Log: log}, cfg.NotifyBuffer, log)
	svc := service.New(cfg, store.New(sqdb), events, log)
	r := api.NewRouter(cfg, svc, auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer), log)

	hsrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout(),
		WriteTimeout:      cfg.WriteTimeout(),
		IdleTimeout:       cfg.IdleTimeout(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("listening")
		if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server")
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := hsrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	if err := events.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("event dispatcher did not drain")
	}
	log.Info("stopped")
}
