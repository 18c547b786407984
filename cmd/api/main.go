package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"authgate.org/internal/auth"
	"authgate.org/internal/config"
	"authgate.org/internal/httpapi"
	"authgate.org/internal/notify"
	"authgate.org/internal/obs"
	"authgate.org/internal/ratelimit"
	"authgate.org/internal/resetflow"
	"authgate.org/internal/session"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := auth.NewPGStore(db)
	svc := auth.NewService(store)

	codec, err := auth.NewCodec([]byte(cfg.SecretKey))
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	issuer := session.NewIssuer(codec, svc,
		session.WithAccessTTL(cfg.AccessTokenTTL),
		session.WithRememberMeTTL(cfg.RememberMeTTL),
		session.WithSecureCookies(cfg.CookieSecure()),
	)
	csrf := session.NewCSRFGuard(cfg.CookieSecure())

	var notifier notify.Notifier = notify.Noop{}
	if cfg.NotifierAPIKey != "" {
		notifier = notify.NewResendClient(cfg.NotifierAPIKey, cfg.NotifierFrom,
			notify.WithBaseURL(cfg.NotifierBaseURL))
	}
	resets := resetflow.NewManager(store, notifier,
		resetflow.WithTokenTTL(cfg.ResetTokenTTL))

	limiter := ratelimit.New(ratelimit.DefaultRules())
	stopSweeper := make(chan struct{})
	go limiter.RunSweeper(time.Minute, stopSweeper)

	api := httpapi.New(httpapi.Deps{
		Auth:     svc,
		Sessions: issuer,
		CSRF:     csrf,
		Resets:   resets,
		Limiter:  limiter,
		Ready:    httpapi.ReadyProbe{DB: db},
		Version:  version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authgate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	close(stopSweeper)
	_ = db.Close()
	log.Println("Stopped")
}
