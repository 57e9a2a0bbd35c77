// Package stream adapts streamed model output to the browser-facing
// server-sent-events protocol. Every frame on the wire is one Chunk
// serialized as JSON.
package stream

import "github.com/google/uuid"

// ChunkType discriminates the chunk union on the wire.
type ChunkType string

const (
	// TypeConnected acknowledges the stream is open.
	TypeConnected ChunkType = "connected"
	// TypeStart announces the assistant message about to be streamed.
	TypeStart ChunkType = "start"
	// TypeContent carries one partial text fragment.
	TypeContent ChunkType = "content"
	// TypeEnd marks successful completion. Nothing follows it.
	TypeEnd ChunkType = "end"
	// TypeError marks failed completion. Nothing follows it.
	TypeError ChunkType = "error"
)

// Chunk is one wire frame. MessageID is set for start, content and
// end; Content is set for content and error.
type Chunk struct {
	Type      ChunkType `json:"type"`
	MessageID string    `json:"messageId,omitempty"`
	Content   string    `json:"content,omitempty"`
}

// Terminal reports whether no further chunks may follow this one.
func (c Chunk) Terminal() bool {
	return c.Type == TypeEnd || c.Type == TypeError
}

// Connected builds the stream-open acknowledgement frame.
func Connected() Chunk {
	return Chunk{Type: TypeConnected}
}

// Start announces the assistant message id whose content follows.
func Start(messageID uuid.UUID) Chunk {
	return Chunk{Type: TypeStart, MessageID: messageID.String()}
}

// ContentChunk carries one text fragment of the announced message.
func ContentChunk(messageID uuid.UUID, text string) Chunk {
	return Chunk{Type: TypeContent, MessageID: messageID.String(), Content: text}
}

// End closes the announced message successfully.
func End(messageID uuid.UUID) Chunk {
	return Chunk{Type: TypeEnd, MessageID: messageID.String()}
}

// ErrorChunk closes the stream with a user-safe failure message.
func ErrorChunk(message string) Chunk {
	return Chunk{Type: TypeError, Content: message}
}
