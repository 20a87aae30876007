// Package graceful coordinates an orderly shutdown across the HTTP
// server, the background workers, and the database connection.
package graceful

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilpcore/engine/pkg/logger"
)

// Stoppable is implemented by every internal/workers/* Worker: Stop
// signals the worker's run loop to exit after its current tick, with no
// error return and no timeout argument.
type Stoppable interface {
	Stop()
}

// ShutdownManager waits for SIGINT/SIGTERM, then stops every registered
// worker, the HTTP server, and finally the database connection.
type ShutdownManager struct {
	server  *http.Server
	db      *sql.DB
	workers []Stoppable
	logger  *logger.Logger
}

func NewShutdownManager(server *http.Server, db *sql.DB, log *logger.Logger) *ShutdownManager {
	return &ShutdownManager{
		server: server,
		db:     db,
		logger: log,
	}
}

// Register adds a worker to stop during shutdown, in registration order.
func (sm *ShutdownManager) Register(w Stoppable) {
	sm.workers = append(sm.workers, w)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then drains everything
// registered within a fixed grace period.
func (sm *ShutdownManager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sm.logger.Info("shutting down gracefully")

	timeout := 30 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, w := range sm.workers {
		w.Stop()
	}

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.Error("server forced shutdown", "error", err)
		}
	}

	if sm.db != nil {
		if err := sm.db.Close(); err != nil {
			sm.logger.Warn("database close error", "error", err)
		}
	}

	sm.logger.Info("shutdown complete")
}
