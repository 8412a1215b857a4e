package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/janhq/chat-stream-api/internal/utils/platformerrors"
)

const (
	scannerInitialBuffer = 12 * 1024        // 12KB
	scannerMaxBuffer     = 10 * 1024 * 1024 // 10MB
	doneMarker           = "[DONE]"
)

type streamLine struct {
	text string
	err  error
}

type streamChunk struct {
	openai.CompletionResponse
	Error *openai.APIError `json:"error,omitempty"`
}

// completionStream turns an SSE body into text increments.
type completionStream struct {
	ctx         context.Context
	body        io.ReadCloser
	lines       chan streamLine
	closed      chan struct{}
	closeOnce   sync.Once
	idleTimeout time.Duration

	mu       sync.Mutex
	model    string
	finished bool
}

func newCompletionStream(ctx context.Context, body io.ReadCloser, model string, idleTimeout time.Duration) *completionStream {
	s := &completionStream{
		ctx:         ctx,
		body:        body,
		lines:       make(chan streamLine),
		closed:      make(chan struct{}),
		idleTimeout: idleTimeout,
		model:       model,
	}
	go s.readLines()
	return s
}

func (s *completionStream) readLines() {
	defer close(s.lines)

	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)
	for scanner.Scan() {
		select {
		case s.lines <- streamLine{text: scanner.Text()}:
		case <-s.closed:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case s.lines <- streamLine{err: err}:
		case <-s.closed:
		}
	}
}

// Recv returns the next non-empty chunk of text. Chunks carrying no text are
// skipped. io.EOF marks the end of the generation.
func (s *completionStream) Recv() (string, error) {
	s.mu.Lock()
	finished := s.finished
	s.mu.Unlock()
	if finished {
		return "", io.EOF
	}

	timer := time.NewTimer(s.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				s.markFinished()
				return "", io.EOF
			}
			if line.err != nil {
				return "", s.readError(line.err)
			}
			text, done, err := s.parseLine(line.text)
			if err != nil {
				return "", err
			}
			if done {
				s.markFinished()
				return "", io.EOF
			}
			if text != "" {
				return text, nil
			}
		case <-timer.C:
			return "", platformerrors.NewError(s.ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeTimeout,
				"inference stream idle timeout", nil, "")
		case <-s.ctx.Done():
			return "", platformerrors.NewError(s.ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeCancelled,
				"inference stream cancelled", s.ctx.Err(), "")
		case <-s.closed:
			return "", io.EOF
		}
	}
}

func (s *completionStream) parseLine(line string) (string, bool, error) {
	line = strings.TrimRight(line, "\r")
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false, nil
	}
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", false, nil
	}
	data = strings.TrimSpace(data)
	if data == doneMarker {
		return "", true, nil
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, platformerrors.NewError(s.ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
			"malformed inference stream chunk", err, "")
	}
	if chunk.Error != nil {
		return "", false, platformerrors.NewErrorWithContext(s.ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
			"inference stream reported an error", nil, "", map[string]any{"upstream_message": chunk.Error.Message})
	}
	if chunk.Model != "" {
		s.mu.Lock()
		s.model = chunk.Model
		s.mu.Unlock()
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	return chunk.Choices[0].Text, false, nil
}

func (s *completionStream) readError(err error) error {
	if s.ctx.Err() != nil {
		return platformerrors.NewError(s.ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeCancelled,
			"inference stream cancelled", err, "")
	}
	if isTimeout(err) {
		return platformerrors.NewError(s.ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeTimeout,
			"inference stream read timed out", err, "")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return platformerrors.NewError(s.ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
			"inference stream ended unexpectedly", err, "")
	}
	return platformerrors.NewError(s.ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
		"inference stream read failed", err, "")
}

func (s *completionStream) markFinished() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
}

func (s *completionStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.body.Close()
	})
	return err
}

func (s *completionStream) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}
