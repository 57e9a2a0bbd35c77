// Package testutil holds shared helpers for stream and API tests.
package testutil

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haven-app/haven/internal/stream"
)

// ParseChunks parses a data-only SSE body into the chunk frames it
// carries. Frames are `data: <json>` lines separated by blank lines;
// comment lines starting with ":" are ignored.
func ParseChunks(t *testing.T, body string) []stream.Chunk {
	t.Helper()

	var chunks []stream.Chunk
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			var c stream.Chunk
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &c); err != nil {
				t.Fatalf("malformed chunk frame %q: %v", line, err)
			}
			chunks = append(chunks, c)
		case line == "" || strings.HasPrefix(line, ":"):
			// frame separator or comment
		default:
			t.Fatalf("unexpected SSE line %q: stream must be data-only", line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan SSE body: %v", err)
	}
	return chunks
}

// ChunkTypes projects the type tags of a parsed frame sequence, for
// order assertions.
func ChunkTypes(chunks []stream.Chunk) []stream.ChunkType {
	types := make([]stream.ChunkType, len(chunks))
	for i, c := range chunks {
		types[i] = c.Type
	}
	return types
}
