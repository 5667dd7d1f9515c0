package memory

// Importance tiers, highest priority first.
const (
	TierConstitutional = "constitutional"
	TierCritical       = "critical"
	TierImportant      = "important"
	TierNormal         = "normal"
	TierTemporary      = "temporary"
	TierDeprecated     = "deprecated"
)

// Embedding states of a memory.
const (
	EmbeddingPending = "pending"
	EmbeddingSuccess = "success"
	EmbeddingRetry   = "retry"
	EmbeddingFailed  = "failed"
)

// Memory is one indexed memory document.
type Memory struct {
	ID               int64    `json:"id"`
	SpecFolder       string   `json:"spec_folder"`
	FilePath         string   `json:"file_path,omitempty"`
	Title            string   `json:"title"`
	Content          string   `json:"content,omitempty"`
	TriggerPhrases   []string `json:"trigger_phrases"`
	ImportanceTier   string   `json:"importance_tier"`
	ImportanceWeight float64  `json:"importance_weight"`
	ContextType      string   `json:"context_type"`
	ContentHash      string   `json:"content_hash,omitempty"`
	Confidence       float64  `json:"confidence"`
	ValidationCount  int      `json:"validation_count"`
	AccessCount      int      `json:"access_count"`
	EmbeddingStatus  string   `json:"embedding_status"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
	LastAccessedAt   *string  `json:"last_accessed_at,omitempty"`
	ArchivedAt       *string  `json:"archived_at,omitempty"`
}

// SaveParams holds the input for creating or re-indexing a memory.
type SaveParams struct {
	SpecFolder       string   `json:"spec_folder"`
	FilePath         string   `json:"file_path,omitempty"`
	Title            string   `json:"title"`
	Content          string   `json:"content"`
	TriggerPhrases   []string `json:"trigger_phrases,omitempty"`
	ImportanceTier   string   `json:"importance_tier,omitempty"`
	ImportanceWeight float64  `json:"importance_weight,omitempty"`
	ContextType      string   `json:"context_type,omitempty"`
	ContentHash      string   `json:"content_hash,omitempty"`
	// Force rewrites the row even when ContentHash is unchanged.
	Force bool `json:"-"`
}

// Save outcomes.
const (
	SaveCreated   = "created"
	SaveUpdated   = "updated"
	SaveUnchanged = "unchanged"
)

// SaveResult reports what Save did.
type SaveResult struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// UpdateParams holds partial metadata updates. Nil fields are left alone.
type UpdateParams struct {
	Title            *string   `json:"title,omitempty"`
	TriggerPhrases   *[]string `json:"trigger_phrases,omitempty"`
	ImportanceTier   *string   `json:"importance_tier,omitempty"`
	ImportanceWeight *float64  `json:"importance_weight,omitempty"`
}

// ListOptions filters and pages List.
type ListOptions struct {
	SpecFolder      string
	Tier            string
	Limit           int
	Offset          int
	SortBy          string
	IncludeArchived bool
}

// SearchOptions holds filters for hybrid search.
type SearchOptions struct {
	Query      string
	Concepts   []string
	SpecFolder string
	Tier       string
	Limit      int
	// QueryVector, when set, re-ranks lexical candidates by cosine similarity.
	QueryVector []float32
}

// SearchResult embeds a Memory with its ranking scores.
type SearchResult struct {
	Memory
	Rank       float64 `json:"rank"`
	Similarity float64 `json:"similarity,omitempty"`
	Score      float64 `json:"score"`
}

// TriggerMatch is a memory whose trigger phrases occur in a prompt.
type TriggerMatch struct {
	Memory
	MatchedPhrases []string `json:"matched_phrases"`
}

// EmbeddingJob is a memory waiting for its vector.
type EmbeddingJob struct {
	ID       int64  `json:"id"`
	Text     string `json:"-"`
	Attempts int    `json:"attempts"`
}

// ─── Causal graph ────────────────────────────────────────────────────────────

// Causal relation kinds.
var CausalRelations = []string{"caused", "enabled", "supersedes", "contradicts", "derived_from", "supports"}

// CausalEdge is a directed link from cause (source) to effect (target).
type CausalEdge struct {
	ID        int64   `json:"id"`
	SourceID  int64   `json:"source_id"`
	TargetID  int64   `json:"target_id"`
	Relation  string  `json:"relation"`
	Strength  float64 `json:"strength"`
	Evidence  string  `json:"evidence,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// LinkParams holds input for LinkCausal.
type LinkParams struct {
	SourceID int64
	TargetID int64
	Relation string
	Strength float64
	Evidence string
}

// ChainNode is one hop in a DriftWhy traversal.
type ChainNode struct {
	EdgeID    int64   `json:"edge_id"`
	MemoryID  int64   `json:"memory_id"`
	Title     string  `json:"title"`
	Tier      string  `json:"importance_tier"`
	Relation  string  `json:"relation"`
	Direction string  `json:"direction"` // "outgoing" or "incoming"
	Strength  float64 `json:"strength"`
	Evidence  string  `json:"evidence,omitempty"`
	Depth     int     `json:"depth"`
}

// DriftResult explains a memory through its causal neighbourhood.
type DriftResult struct {
	Memory     Memory      `json:"memory"`
	Chain      []ChainNode `json:"chain"`
	TotalNodes int         `json:"total_nodes"`
	MaxDepth   int         `json:"max_depth"`
}

// CausalStats summarizes graph coverage.
type CausalStats struct {
	TotalEdges     int            `json:"total_edges"`
	ByRelation     map[string]int `json:"by_relation"`
	LinkedMemories int            `json:"linked_memories"`
	TotalMemories  int            `json:"total_memories"`
	Coverage       float64        `json:"coverage"`
	AvgStrength    float64        `json:"avg_strength"`
}

// ─── Checkpoints ─────────────────────────────────────────────────────────────

// Checkpoint is a named snapshot.
type Checkpoint struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SpecFolder  string `json:"spec_folder,omitempty"`
	MemoryCount int    `json:"memory_count"`
	EdgeCount   int    `json:"edge_count"`
	CreatedAt   string `json:"created_at"`
}

// RestoreResult reports what RestoreCheckpoint did.
type RestoreResult struct {
	Checkpoint    Checkpoint `json:"checkpoint"`
	Cleared       int64      `json:"cleared"`
	Restored      int        `json:"restored"`
	Skipped       int        `json:"skipped"`
	EdgesRestored int        `json:"edges_restored"`
}

// ─── Learning ────────────────────────────────────────────────────────────────

// Learning record phases.
const (
	PhasePreflight = "preflight"
	PhaseComplete  = "complete"
)

// PreflightParams are the baseline scores recorded before a task.
type PreflightParams struct {
	SpecFolder    string
	TaskID        string
	Knowledge     float64
	Uncertainty   float64
	Context       float64
	KnowledgeGaps []string
}

// PostflightParams are the scores recorded after a task.
type PostflightParams struct {
	SpecFolder  string
	TaskID      string
	Knowledge   float64
	Uncertainty float64
	Context     float64
	GapsClosed  []string
	NewGaps     []string
}

// LearningRecord is one task's preflight/postflight pair.
type LearningRecord struct {
	ID              int64    `json:"id"`
	SpecFolder      string   `json:"spec_folder"`
	TaskID          string   `json:"task_id"`
	Phase           string   `json:"phase"`
	PreKnowledge    float64  `json:"pre_knowledge"`
	PreUncertainty  float64  `json:"pre_uncertainty"`
	PreContext      float64  `json:"pre_context"`
	KnowledgeGaps   []string `json:"knowledge_gaps"`
	PostKnowledge   *float64 `json:"post_knowledge,omitempty"`
	PostUncertainty *float64 `json:"post_uncertainty,omitempty"`
	PostContext     *float64 `json:"post_context,omitempty"`
	GapsClosed      []string `json:"gaps_closed"`
	NewGaps         []string `json:"new_gaps"`
	LearningIndex   *float64 `json:"learning_index,omitempty"`
	CreatedAt       string   `json:"created_at"`
	CompletedAt     *string  `json:"completed_at,omitempty"`
}

// LearningSummary aggregates completed records.
type LearningSummary struct {
	Total                   int     `json:"total"`
	Completed               int     `json:"completed"`
	AvgLearningIndex        float64 `json:"avg_learning_index"`
	AvgKnowledgeGain        float64 `json:"avg_knowledge_gain"`
	AvgUncertaintyReduction float64 `json:"avg_uncertainty_reduction"`
}

// LearningHistory is the output of LearningHistory.
type LearningHistory struct {
	SpecFolder string           `json:"spec_folder"`
	Records    []LearningRecord `json:"records"`
	Summary    LearningSummary  `json:"summary"`
}

// ─── Sessions ────────────────────────────────────────────────────────────────

// Session states.
const (
	SessionActive      = "active"
	SessionCompleted   = "completed"
	SessionInterrupted = "interrupted"
)

// Session is one server process lifetime.
type Session struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	StartedAt      string  `json:"started_at"`
	LastActivityAt string  `json:"last_activity_at"`
	EndedAt        *string `json:"ended_at,omitempty"`
	CallCount      int     `json:"call_count"`
}

// ─── Stats / health ──────────────────────────────────────────────────────────

// FolderCount is a spec folder with its memory count.
type FolderCount struct {
	SpecFolder string `json:"spec_folder"`
	Count      int    `json:"count"`
}

// Stats holds aggregate memory statistics.
type Stats struct {
	TotalMemories int            `json:"total_memories"`
	Archived      int            `json:"archived"`
	ByTier        map[string]int `json:"by_tier"`
	ByEmbedding   map[string]int `json:"by_embedding_status"`
	SpecFolders   []FolderCount  `json:"spec_folders"`
	LastIndexedAt string         `json:"last_indexed_at,omitempty"`
}

// Health is the storage half of the memory_health report.
type Health struct {
	DatabaseOK        bool   `json:"database_ok"`
	Integrity         string `json:"integrity"`
	Path              string `json:"path"`
	SizeBytes         int64  `json:"size_bytes"`
	SchemaVersion     string `json:"schema_version"`
	ServerVersion     string `json:"server_version,omitempty"`
	Memories          int    `json:"memories"`
	PendingEmbeddings int    `json:"pending_embeddings"`
	FailedEmbeddings  int    `json:"failed_embeddings"`
}
