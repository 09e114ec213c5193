package core

// ChunkType discriminates the chunks delivered by a streaming request.
type ChunkType string

const (
	// ChunkStatus reports pipeline progress (stage transitions, degradations).
	ChunkStatus ChunkType = "status"
	// ChunkPrimary carries incremental text from the primary task.
	ChunkPrimary ChunkType = "primary"
	// ChunkFusion is the single terminal chunk carrying the fused response
	// and all contributing results.
	ChunkFusion ChunkType = "fusion"
)

// StreamChunk is one element of the lazy, finite, non-restartable chunk
// sequence produced by ProcessStream. Exactly one fusion chunk ends every
// successful stream.
type StreamChunk struct {
	Type ChunkType

	// Stage names the pipeline stage for status chunks.
	Stage string

	// Text is incremental primary output, or the final fused text on the
	// fusion chunk.
	Text string

	// Result is populated on the fusion chunk only.
	Result *PlanExecutionResult
}
