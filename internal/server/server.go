// Package server is the composition root and lifecycle owner of recall.
//
// It wires the storage, tool handlers, auto-surface hook and after-call
// subscribers into one Runtime, registers every catalogue tool with mcp-go
// and drives startup and shutdown. Tool semantics live in memtools.
package server

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/recall/internal/catalog"
	"github.com/HendryAvila/recall/internal/prompts"
	"github.com/HendryAvila/recall/internal/resources"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Name is the server name advertised at initialize.
const Name = "recall"

func newMCPServer(version string, h *Handler, res *resources.Handler) *server.MCPServer {
	s := server.NewMCPServer(
		Name,
		version,
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)
	for _, t := range catalog.Descriptors() {
		s.AddTool(t, h.ToolHandler(t.Name))
	}

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)
	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	s.AddResource(res.HealthResource(), res.HandleHealth)
	s.AddResource(res.StatsResource(), res.HandleStats)
	return s
}

// Serve runs the stdio transport until in is exhausted or the runtime
// shuts down.
func (r *Runtime) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	t := NewTransport(r.mcp, r.handler.HandleCall, r.logger)
	r.mu.Lock()
	r.transport = t
	r.mu.Unlock()
	if r.shuttingDown.Load() {
		return nil
	}

	err := t.Listen(ctx, in, out)
	if isCanceled(err) {
		return nil
	}
	return err
}

func serverInstructions() string {
	return `recall is a long-lived memory for coding sessions.

Start a task with memory_context: it picks quick trigger matching or a deeper
search and always includes constitutional rules. Use memory_search for explicit
lookups and memory_save after writing a memory file under <spec>/memory/.

Results of search-style tools carry _meta.autoSurfacedContext with the
constitutional memories and trigger matches for the same query. Every result
carries _meta.callId.

Before risky edits create a checkpoint (checkpoint_create) so the index can be
rolled back with checkpoint_restore. Record why a memory exists with
memory_causal_link and inspect it with memory_drift_why. Track learning per
task with task_preflight and task_postflight.`
}
