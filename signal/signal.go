// Package signal provides the process-wide shutdown handler: first SIGINT or
// SIGTERM requests a graceful stop, a second one terminates immediately.
package signal

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// Handler broadcasts shutdown to every stage. The zero value is not usable;
// call NewHandler.
type Handler struct {
	done     chan struct{}
	shutdown atomic.Bool
}

// NewHandler creates a handler; call Listen to attach it to OS signals.
func NewHandler() *Handler {
	return &Handler{done: make(chan struct{})}
}

// Listen installs the OS signal handlers in a background goroutine.
func (h *Handler) Listen() *Handler {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range ch {
			if h.shutdown.Load() {
				log.Warnf("%s received, terminating...", sig)
				os.Exit(1)
			}
			log.Warnf("%s received, stopping... (repeat for forced close)", sig)
			h.Shutdown()
		}
	}()
	return h
}

// Shutdown requests a graceful stop. Safe to call more than once.
func (h *Handler) Shutdown() {
	if h.shutdown.CompareAndSwap(false, true) {
		close(h.done)
	}
}

// IsShutdown reports whether a stop was requested.
func (h *Handler) IsShutdown() bool {
	return h.shutdown.Load()
}

// Done returns a channel closed on shutdown, for use in select statements.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
