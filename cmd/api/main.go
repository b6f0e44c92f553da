package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hrdesk.org/internal/account"
	"hrdesk.org/internal/config"
	"hrdesk.org/internal/directory"
	"hrdesk.org/internal/email"
	"hrdesk.org/internal/httpapi"
	"hrdesk.org/internal/obs"
	"hrdesk.org/internal/store/pg"
	"hrdesk.org/internal/workflow"
)

// Set via -ldflags "-X main.version=... -X main.commit=..." at release time.
var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)
	cfg := config.Load()

	db, err := pg.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	if err := pg.Ping(db); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	var sender email.Sender = email.LogSender{}
	if cfg.SMTPAddr != "" {
		sender = &email.SMTPSender{
			Addr:     cfg.SMTPAddr,
			From:     cfg.EmailFrom,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
		}
	}

	accounts, err := account.NewService(account.NewPGStore(db), cfg.TokenSecret, sender,
		account.WithAccessTTL(cfg.AccessTTL),
		account.WithRefreshTTL(cfg.RefreshTTL),
		account.WithResetTokenTTL(cfg.ResetTokenTTL),
		account.WithOrigin(cfg.AppOrigin),
		account.WithIssuer(cfg.TokenIssuer),
	)
	if err != nil {
		log.Fatalf("account service: %v", err)
	}

	dir := directory.NewPGStore(db)
	workflows := workflow.NewService(workflow.NewPGStore(db), dir)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, accounts, workflows, dir, httpapi.Options{
		AppOrigin:      cfg.AppOrigin,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting hrdesk-api %s on %s", version, srv.Addr)

	// graceful shutdown
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
	_ = db.Close()
	log.Println("Stopped")
}
