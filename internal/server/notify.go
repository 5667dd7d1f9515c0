package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// AfterCallFunc observes a finished tool call. It runs after the response
// has been handed back and cannot change it.
type AfterCallFunc func(ctx context.Context, toolName, callID string, result *mcp.CallToolResult) error

// Notifier fans finished calls out to subscribers.
type Notifier struct {
	logger *slog.Logger
	// onFailure, when set, is told about each failed subscriber.
	onFailure func(ctx context.Context, toolName string)

	mu   sync.Mutex
	subs []AfterCallFunc
}

// NewNotifier creates an empty Notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

// Register appends fn. Subscribers are never removed or de-duplicated.
func (n *Notifier) Register(fn AfterCallFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

// Len returns the number of registered subscribers.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Notify returns immediately. Every subscriber registered at the time of the
// snapshot runs on its own goroutine; a failing or panicking subscriber is
// logged and never affects the others.
func (n *Notifier) Notify(ctx context.Context, toolName, callID string, result *mcp.CallToolResult) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		n.mu.Lock()
		subs := make([]AfterCallFunc, len(n.subs))
		copy(subs, n.subs)
		n.mu.Unlock()

		for i, fn := range subs {
			go n.run(ctx, i, fn, toolName, callID, result)
		}
	}()
}

func (n *Notifier) run(ctx context.Context, index int, fn AfterCallFunc, toolName, callID string, result *mcp.CallToolResult) {
	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		if err == nil {
			return
		}
		n.logger.Warn("after-call callback failed",
			"tool", toolName,
			"call_id", callID,
			"subscriber", index,
			"error", err,
		)
		if n.onFailure != nil {
			n.onFailure(ctx, toolName)
		}
	}()
	err = fn(ctx, toolName, callID, result)
}
