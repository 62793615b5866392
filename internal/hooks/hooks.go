// Package hooks provides run lifecycle hook management.
//
// Handlers observe a run; they cannot change its outcome. A handler error is
// returned to the caller, which decides whether to log it or surface it.
package hooks

import (
	"context"
	"fmt"
	"sync"
)

// HookType represents different lifecycle hooks
type HookType string

const (
	// HookRunStart is called after the run directory and context are written.
	HookRunStart HookType = "run_start"

	// HookAttemptFailed is called when an attempt fails the quality gate.
	HookAttemptFailed HookType = "attempt_failed"

	// HookRunEnd is called once the run reaches a terminal state.
	HookRunEnd HookType = "run_end"
)

// Event carries the run state visible to handlers.
type Event struct {
	RunID   string
	TaskID  string
	RunDir  string
	Attempt int
	Status  string
	Reason  string
	Message string
	Issues  []string
}

// HookHandler is a function that handles a hook event
type HookHandler func(ctx context.Context, ev Event) error

// HookManager manages lifecycle hooks
type HookManager struct {
	mu       sync.RWMutex
	handlers map[HookType][]HookHandler
}

// NewHookManager creates a new hook manager
func NewHookManager() *HookManager {
	return &HookManager{
		handlers: make(map[HookType][]HookHandler),
	}
}

// RegisterHandler registers a handler for a hook type
func (h *HookManager) RegisterHandler(hookType HookType, handler HookHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[hookType] = append(h.handlers[hookType], handler)
}

// Execute runs every handler for hookType in registration order and stops
// at the first error.
func (h *HookManager) Execute(ctx context.Context, hookType HookType, ev Event) error {
	h.mu.RLock()
	handlers := append([]HookHandler(nil), h.handlers[hookType]...)
	h.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, ev); err != nil {
			return fmt.Errorf("hook %s failed: %w", hookType, err)
		}
	}
	return nil
}
