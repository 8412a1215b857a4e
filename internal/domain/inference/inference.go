package inference

import (
	"context"
)

// Request is one generation call. The prompt is sent verbatim.
type Request struct {
	Prompt        string
	MaxTokens     int
	StopSequences []string
}

// Generator opens streaming generations against the inference service.
type Generator interface {
	GenerateStream(ctx context.Context, req Request) (Stream, error)
}

// Stream yields text increments in the order produced upstream. Recv returns
// io.EOF once the generation has finished. A stream is finite and cannot be
// restarted; Close releases the underlying connection and is safe to call more
// than once.
type Stream interface {
	Recv() (string, error)
	Close() error
	// Model reports the model that served the request, if known.
	Model() string
}
