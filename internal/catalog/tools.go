package catalog

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names.
const (
	MemoryContext            = "memory_context"
	MemorySearch             = "memory_search"
	MemoryMatchTriggers      = "memory_match_triggers"
	MemorySave               = "memory_save"
	MemoryList               = "memory_list"
	MemoryStats              = "memory_stats"
	MemoryHealth             = "memory_health"
	MemoryDelete             = "memory_delete"
	MemoryUpdate             = "memory_update"
	MemoryValidate           = "memory_validate"
	CheckpointCreate         = "checkpoint_create"
	CheckpointList           = "checkpoint_list"
	CheckpointRestore        = "checkpoint_restore"
	CheckpointDelete         = "checkpoint_delete"
	TaskPreflight            = "task_preflight"
	TaskPostflight           = "task_postflight"
	MemoryDriftWhy           = "memory_drift_why"
	MemoryCausalLink         = "memory_causal_link"
	MemoryCausalStats        = "memory_causal_stats"
	MemoryCausalUnlink       = "memory_causal_unlink"
	MemoryIndexScan          = "memory_index_scan"
	MemoryGetLearningHistory = "memory_get_learning_history"
)

// Importance tiers accepted by tools that filter or set a tier.
var tierValues = []string{"constitutional", "critical", "important", "normal", "temporary", "deprecated"}

// Causal relation kinds accepted by memory_causal_link.
var relationValues = []string{"caused", "enabled", "supersedes", "contradicts", "derived_from", "supports"}

type access int

const (
	readOnly access = iota
	writes
	destroys
)

// define builds a descriptor whose description carries the layer tag and the
// budget hint.
func define(layer Layer, name string, acc access, desc string, opts ...mcp.ToolOption) entry {
	full := fmt.Sprintf("%s %s Token Budget: %d.", layer.Tag(), desc, layer.Budget)
	all := []mcp.ToolOption{
		mcp.WithDescription(full),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{
			ReadOnlyHint:    mcp.ToBoolPtr(acc == readOnly),
			DestructiveHint: mcp.ToBoolPtr(acc == destroys),
			OpenWorldHint:   mcp.ToBoolPtr(false),
		}),
	}
	all = append(all, opts...)
	return entry{layer: layer, tool: mcp.NewTool(name, all...)}
}

func buildEntries() []entry {
	return []entry{
		// ─── L1 Orchestration ────────────────────────────────────────────
		define(Orchestration, MemoryContext, readOnly,
			"Unified entry point: retrieves the memories most relevant to what you are about to do. "+
				"Mode auto picks quick for short prompts and deep for longer ones; focused restricts to one spec folder.",
			mcp.WithString("query", mcp.Required(), mcp.Description("What you are working on, in natural language")),
			mcp.WithString("mode", mcp.Description("Retrieval mode"), mcp.Enum("auto", "quick", "deep", "focused")),
			mcp.WithString("specFolder", mcp.Description("Restrict results to a spec folder")),
			mcp.WithNumber("limit", mcp.Description("Max memories (default: mode dependent, max: 20)")),
		),

		// ─── L2 Core ─────────────────────────────────────────────────────
		define(Core, MemorySearch, readOnly,
			"Search saved memories by keywords or concepts, optionally re-ranked by semantic similarity.",
			mcp.WithString("query", mcp.Description("Search query, natural language or keywords")),
			mcp.WithArray("concepts", mcp.WithStringItems(), mcp.Description("Concept words combined with AND semantics when no query is given")),
			mcp.WithString("specFolder", mcp.Description("Filter by spec folder")),
			mcp.WithString("tier", mcp.Description("Filter by importance tier"), mcp.Enum(tierValues...)),
			mcp.WithNumber("limit", mcp.Description("Max results (default: 10, max: 20)")),
			mcp.WithString("detail_level", mcp.Description("Verbosity: summary, standard (default) or full"), mcp.Enum("summary", "standard", "full")),
		),
		define(Core, MemoryMatchTriggers, readOnly,
			"Find memories whose trigger phrases occur in a prompt. Fast lexical match, no embeddings.",
			mcp.WithString("prompt", mcp.Required(), mcp.Description("The user prompt to match against trigger phrases")),
			mcp.WithString("specFolder", mcp.Description("Filter by spec folder")),
			mcp.WithNumber("limit", mcp.Description("Max matches (default: 5)")),
		),
		define(Core, MemorySave, writes,
			"Index a memory markdown file (YAML frontmatter plus body) into the memory database. "+
				"Unchanged files are skipped unless force is true.",
			mcp.WithString("filePath", mcp.Required(), mcp.Description("Absolute path, or a path relative to the base path")),
			mcp.WithBoolean("force", mcp.Description("Re-index even when the content hash is unchanged (default: false)")),
		),

		// ─── L3 Discovery ────────────────────────────────────────────────
		define(Discovery, MemoryList, readOnly,
			"Browse stored memories with pagination.",
			mcp.WithString("specFolder", mcp.Description("Filter by spec folder")),
			mcp.WithString("tier", mcp.Description("Filter by importance tier"), mcp.Enum(tierValues...)),
			mcp.WithNumber("limit", mcp.Description("Page size (default: 20, max: 100)")),
			mcp.WithNumber("offset", mcp.Description("Number of memories to skip")),
			mcp.WithString("sortBy", mcp.Description("Sort order"), mcp.Enum("created_at", "updated_at", "importance")),
		),
		define(Discovery, MemoryStats, readOnly,
			"Aggregate statistics: totals by tier and embedding status, spec folders, last indexing time.",
			mcp.WithString("specFolder", mcp.Description("Restrict statistics to a spec folder")),
		),
		define(Discovery, MemoryHealth, readOnly,
			"Health report for the memory system: database integrity, embedding provider, background jobs and recovery counters.",
		),

		// ─── L4 Mutation ─────────────────────────────────────────────────
		define(Mutation, MemoryDelete, destroys,
			"Delete a memory by id, or every memory in a spec folder (requires confirm).",
			mcp.WithNumber("id", mcp.Description("Memory id")),
			mcp.WithString("specFolder", mcp.Description("Delete all memories in this spec folder")),
			mcp.WithBoolean("confirm", mcp.Description("Required for bulk deletion by spec folder")),
		),
		define(Mutation, MemoryUpdate, writes,
			"Update memory metadata: title, trigger phrases, importance tier or weight.",
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Memory id")),
			mcp.WithString("title", mcp.Description("New title")),
			mcp.WithArray("triggerPhrases", mcp.WithStringItems(), mcp.Description("Replacement trigger phrases")),
			mcp.WithString("importanceTier", mcp.Description("New importance tier"), mcp.Enum(tierValues...)),
			mcp.WithNumber("importanceWeight", mcp.Description("New importance weight between 0 and 1")),
		),
		define(Mutation, MemoryValidate, writes,
			"Record whether a memory was useful. Adjusts its confidence score.",
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Memory id")),
			mcp.WithBoolean("wasUseful", mcp.Required(), mcp.Description("True if the memory helped")),
		),

		// ─── L5 Lifecycle ────────────────────────────────────────────────
		define(Lifecycle, CheckpointCreate, writes,
			"Snapshot the current memories and causal edges under a name.",
			mcp.WithString("name", mcp.Required(), mcp.Description("Unique checkpoint name")),
			mcp.WithString("specFolder", mcp.Description("Only snapshot this spec folder")),
		),
		define(Lifecycle, CheckpointList, readOnly,
			"List checkpoints, newest first.",
			mcp.WithString("specFolder", mcp.Description("Filter by spec folder")),
			mcp.WithNumber("limit", mcp.Description("Max checkpoints (default: 50)")),
		),
		define(Lifecycle, CheckpointRestore, destroys,
			"Restore memories from a checkpoint. With clearExisting the snapshot scope is emptied first.",
			mcp.WithString("name", mcp.Required(), mcp.Description("Checkpoint name")),
			mcp.WithBoolean("clearExisting", mcp.Description("Delete current memories in scope before restoring (default: false)")),
		),
		define(Lifecycle, CheckpointDelete, destroys,
			"Delete a checkpoint.",
			mcp.WithString("name", mcp.Required(), mcp.Description("Checkpoint name")),
		),

		// ─── L6 Analysis ─────────────────────────────────────────────────
		define(Analysis, TaskPreflight, writes,
			"Record knowledge, uncertainty and context scores (0-100) before starting a task.",
			mcp.WithString("specFolder", mcp.Required(), mcp.Description("Spec folder the task belongs to")),
			mcp.WithString("taskId", mcp.Required(), mcp.Description("Task identifier")),
			mcp.WithNumber("knowledgeScore", mcp.Required(), mcp.Description("Current knowledge, 0-100")),
			mcp.WithNumber("uncertaintyScore", mcp.Required(), mcp.Description("Current uncertainty, 0-100")),
			mcp.WithNumber("contextScore", mcp.Required(), mcp.Description("Current context completeness, 0-100")),
			mcp.WithArray("knowledgeGaps", mcp.WithStringItems(), mcp.Description("Known gaps")),
		),
		define(Analysis, TaskPostflight, writes,
			"Record scores after finishing a task and compute the learning index against the preflight baseline.",
			mcp.WithString("specFolder", mcp.Required(), mcp.Description("Spec folder the task belongs to")),
			mcp.WithString("taskId", mcp.Required(), mcp.Description("Task identifier used at preflight")),
			mcp.WithNumber("knowledgeScore", mcp.Required(), mcp.Description("Knowledge after the task, 0-100")),
			mcp.WithNumber("uncertaintyScore", mcp.Required(), mcp.Description("Uncertainty after the task, 0-100")),
			mcp.WithNumber("contextScore", mcp.Required(), mcp.Description("Context completeness after the task, 0-100")),
			mcp.WithArray("gapsClosed", mcp.WithStringItems(), mcp.Description("Gaps closed during the task")),
			mcp.WithArray("newGapsDiscovered", mcp.WithStringItems(), mcp.Description("Gaps discovered during the task")),
		),
		define(Analysis, MemoryDriftWhy, readOnly,
			"Explain why a memory exists by walking its causal chain.",
			mcp.WithNumber("memoryId", mcp.Required(), mcp.Description("Memory id to explain")),
			mcp.WithNumber("maxDepth", mcp.Description("Traversal depth (default: 3, max: 5)")),
			mcp.WithString("direction", mcp.Description("Edge direction to follow"), mcp.Enum("outgoing", "incoming", "both")),
		),
		define(Analysis, MemoryCausalLink, writes,
			"Create a causal edge between two memories.",
			mcp.WithNumber("sourceId", mcp.Required(), mcp.Description("Cause memory id")),
			mcp.WithNumber("targetId", mcp.Required(), mcp.Description("Effect memory id")),
			mcp.WithString("relation", mcp.Required(), mcp.Description("Relation kind"), mcp.Enum(relationValues...)),
			mcp.WithNumber("strength", mcp.Description("Edge strength between 0 and 1 (default: 1)")),
			mcp.WithString("evidence", mcp.Description("Why the link exists")),
		),
		define(Analysis, MemoryCausalStats, readOnly,
			"Causal graph coverage: edge counts by relation and share of memories linked.",
		),
		define(Analysis, MemoryCausalUnlink, destroys,
			"Remove a causal edge by id.",
			mcp.WithNumber("edgeId", mcp.Required(), mcp.Description("Edge id from memory_drift_why output")),
		),

		// ─── L7 Maintenance ──────────────────────────────────────────────
		define(Maintenance, MemoryIndexScan, writes,
			"Scan the workspace for memory files and index new or changed ones.",
			mcp.WithString("specFolder", mcp.Description("Only scan this spec folder")),
			mcp.WithBoolean("force", mcp.Description("Re-index every file regardless of content hash (default: false)")),
		),
		define(Maintenance, MemoryGetLearningHistory, readOnly,
			"Learning records for a spec folder with the average learning index.",
			mcp.WithString("specFolder", mcp.Required(), mcp.Description("Spec folder")),
			mcp.WithNumber("limit", mcp.Description("Max records (default: 10)")),
			mcp.WithBoolean("onlyComplete", mcp.Description("Only tasks with a postflight record (default: false)")),
		),
	}
}
