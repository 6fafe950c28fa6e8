package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"testprep/internal/app"
	"testprep/internal/db"
	"testprep/internal/question"
	"testprep/internal/session"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	ctx := context.Background()

	conn, err := db.OpenWithConfig(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN, db.Config{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
	})
	if err != nil {
		log.Printf("database error: %v", err)
		os.Exit(1)
	}
	defer conn.Close()

	sessionSvc := session.NewService(conn, question.NewService(conn), session.Config{
		Driver:        db.Driver(cfg.DBDriver),
		EnforceExpiry: cfg.SessionEnforceExpiry,
		Retention:     time.Duration(cfg.SessionRetentionHours) * time.Hour,
	})
	go sweepStaleSessions(ctx, sessionSvc, time.Duration(cfg.SweepIntervalMinutes)*time.Minute)

	r := app.NewRouter(cfg, conn, sessionSvc)

	log.Printf("testprep web listening on %s", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}

// sweepStaleSessions periodically drops in-progress sessions past the
// retention window.
func sweepStaleSessions(ctx context.Context, svc *session.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.DeleteStale(ctx)
			if err != nil {
				log.Printf("session sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("session sweep removed %d stale sessions", n)
			}
		}
	}
}
