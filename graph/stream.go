package graph

// ChunkType classifies an element of the run output stream.
type ChunkType string

const (
	// ChunkOutput carries the full output of one node invocation.
	ChunkOutput ChunkType = "output"

	// ChunkToken carries a streamed delta from a streaming invoker.
	ChunkToken ChunkType = "token"

	// ChunkError carries an "Error in node execution: ..." marker.
	ChunkError ChunkType = "error"

	// ChunkInteraction announces a request the caller must resolve.
	ChunkInteraction ChunkType = "interaction"
)

// Chunk is one element of the run output stream.
type Chunk struct {
	Type        ChunkType
	NodeID      string
	NodeName    string
	Text        string
	Interaction *InteractionInfo
}

// Message roles used in conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is an element of the conversation history handed to sub-agents.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
