package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/janhq/chat-stream-api/internal/domain/conversation"
	"github.com/janhq/chat-stream-api/internal/domain/inference"
	"github.com/janhq/chat-stream-api/internal/domain/prompt"
	"github.com/janhq/chat-stream-api/internal/domain/session"
	"github.com/janhq/chat-stream-api/internal/domain/tokenbudget"
	"github.com/janhq/chat-stream-api/internal/utils/platformerrors"
)

const tracerName = "chat-stream-api/streaming"

const (
	defaultKeepAliveInterval = 15 * time.Second
	defaultPersistTimeout    = 10 * time.Second
	defaultHistoryMaxTurns   = 10
	defaultMessageMaxLength  = 8000
)

// Config holds the orchestrator tunables.
type Config struct {
	HistoryMaxTurns   int
	MessageMaxLength  int
	Limits            tokenbudget.Limits
	StopSequences     []string
	KeepAliveInterval time.Duration
	PersistTimeout    time.Duration
	// Model is recorded on messages when the upstream does not report one.
	Model string
}

type StartInput struct {
	ConversationID uint
	Message        string
}

type StartResult struct {
	SessionID     string
	MessageID     uint
	UserMessageID uint
	PromptTokens  int
	MaxTokens     int
}

// StatusView is the public view of a registered session.
type StatusView struct {
	SessionID      string        `json:"sessionId"`
	State          session.State `json:"state"`
	ConversationID uint          `json:"conversationId"`
	MessageID      uint          `json:"messageId"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// Service drives the start/attach/cancel session protocol.
type Service struct {
	repo      conversation.Repository
	generator inference.Generator
	registry  *session.Registry
	estimator *tokenbudget.Estimator
	recorder  Recorder
	cfg       Config
	log       zerolog.Logger
}

func NewService(
	repo conversation.Repository,
	generator inference.Generator,
	registry *session.Registry,
	estimator *tokenbudget.Estimator,
	recorder Recorder,
	cfg Config,
	log zerolog.Logger,
) *Service {
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = defaultKeepAliveInterval
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	if cfg.HistoryMaxTurns <= 0 {
		cfg.HistoryMaxTurns = defaultHistoryMaxTurns
	}
	if cfg.MessageMaxLength <= 0 {
		cfg.MessageMaxLength = defaultMessageMaxLength
	}
	if len(cfg.StopSequences) == 0 {
		cfg.StopSequences = prompt.DefaultStopSequences
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Service{
		repo:      repo,
		generator: generator,
		registry:  registry,
		estimator: estimator,
		recorder:  recorder,
		cfg:       cfg,
		log:       log.With().Str("component", "streaming").Logger(),
	}
}

// StartSession records the user message and an empty assistant placeholder,
// prepares a prompt that fits the token ceiling and registers a pending
// session for AttachSession to consume.
func (s *Service) StartSession(ctx context.Context, in StartInput) (*StartResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "streaming.StartSession")
	defer span.End()
	span.SetAttributes(attribute.Int64("conversation.id", int64(in.ConversationID)))

	message := strings.TrimSpace(in.Message)
	if err := s.validateStart(ctx, in.ConversationID, message); err != nil {
		return nil, err
	}

	exists, err := s.repo.ConversationExists(ctx, in.ConversationID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to look up conversation")
	}
	if !exists {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			"conversation not found", nil, "")
	}

	userMsg, err := s.repo.CreateMessage(ctx, in.ConversationID, conversation.RoleUser, message)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create user message")
	}
	placeholder, err := s.repo.CreateMessage(ctx, in.ConversationID, conversation.RoleAssistant, "")
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create assistant message")
	}

	// the placeholder must never be part of the prompt
	turns, err := s.repo.GetBoundedHistory(ctx, in.ConversationID, s.cfg.HistoryMaxTurns, placeholder.ID)
	if err != nil {
		s.markPlaceholder(ctx, placeholder.ID, conversation.MessageStatusFailed)
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load conversation history")
	}

	promptText, budget, dropped := s.fitPrompt(turns)
	if dropped > 0 {
		s.log.Warn().
			Uint("conversation_id", in.ConversationID).
			Int("dropped_turns", dropped).
			Int("prompt_tokens", budget.PromptTokens).
			Msg("trimmed oldest turns to fit the token ceiling")
	}
	if budget.MaxResponseTokens <= 0 {
		s.markPlaceholder(ctx, placeholder.ID, conversation.MessageStatusFailed)
		return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"message is too long for the model context window, please shorten it", nil, "",
			map[string]any{"prompt_tokens": budget.PromptTokens, "ceiling": budget.Ceiling})
	}

	sessionID, err := s.registry.Create(session.PendingPayload{
		ConversationID:     in.ConversationID,
		UserText:           message,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: placeholder.ID,
		Prompt:             promptText,
		PromptTokens:       budget.PromptTokens,
		MaxTokens:          budget.MaxResponseTokens,
	})
	if err != nil {
		s.markPlaceholder(ctx, placeholder.ID, conversation.MessageStatusFailed)
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"failed to register stream session", err, "")
	}

	s.recorder.SessionStarted(budget.Degraded)
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("budget.prompt_tokens", budget.PromptTokens),
		attribute.Int("budget.max_tokens", budget.MaxResponseTokens),
	)
	s.log.Info().
		Str("session_id", sessionID).
		Uint("conversation_id", in.ConversationID).
		Uint("message_id", placeholder.ID).
		Int("prompt_tokens", budget.PromptTokens).
		Int("max_tokens", budget.MaxResponseTokens).
		Msg("stream session started")

	return &StartResult{
		SessionID:     sessionID,
		MessageID:     placeholder.ID,
		UserMessageID: userMsg.ID,
		PromptTokens:  budget.PromptTokens,
		MaxTokens:     budget.MaxResponseTokens,
	}, nil
}

func (s *Service) validateStart(ctx context.Context, conversationID uint, message string) error {
	switch {
	case conversationID == 0:
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"conversationId must be a positive integer", nil, "")
	case message == "":
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"message must not be empty", nil, "")
	case utf8.RuneCountInString(message) > s.cfg.MessageMaxLength:
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			fmt.Sprintf("message must be at most %d characters", s.cfg.MessageMaxLength), nil, "")
	}
	return nil
}

// fitPrompt drops the oldest turns while the budget is degraded, keeping at
// least the latest turn.
func (s *Service) fitPrompt(turns []conversation.Turn) (string, tokenbudget.Budget, int) {
	dropped := 0
	for {
		text := prompt.Build(turns)
		budget := s.estimator.ComputeMaxResponseTokens(text, s.cfg.Limits)
		if !budget.Degraded || len(turns) <= 1 {
			return text, budget, dropped
		}
		turns = turns[1:]
		dropped++
	}
}

type outcome struct {
	state     session.State
	errorType ErrorType
	message   string
	cause     error
}

var (
	outcomeCompleted = outcome{state: session.StateCompleted}
	outcomeCancelled = outcome{state: session.StateCancelled, errorType: ErrorTypeCancelled, message: "generation cancelled"}
)

func outcomeFailed(errorType ErrorType, cause error) outcome {
	msg := "the model service is unavailable"
	if errorType == ErrorTypeTimeout {
		msg = "the model took too long to respond"
	}
	return outcome{state: session.StateFailed, errorType: errorType, message: msg, cause: cause}
}

// AttachSession streams the generation of a pending session to obs. Unknown
// or already attached sessions fail before obs is touched. Once the stream is
// open every outcome is reported through obs and the returned error is nil.
// The session is always removed from the registry before returning.
func (s *Service) AttachSession(ctx context.Context, sessionID string, obs Observer) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "streaming.AttachSession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})

	data, err := s.registry.MarkActive(sessionID, cancel, done)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyActive) {
			return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict,
				"session is already attached", nil, "")
		}
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			"session not found", nil, "")
	}
	defer func() {
		close(done)
		s.registry.Remove(sessionID)
	}()

	log := s.log.With().Str("session_id", sessionID).Uint("message_id", data.AssistantMessageID).Logger()
	started := time.Now()

	var (
		content strings.Builder
		tokens  int
		model   = s.cfg.Model
		result  outcome
	)

	if err := obs.OnOpen(); err != nil {
		log.Warn().Err(err).Msg("client went away before the stream opened")
		result = outcomeCancelled
	} else {
		stream, err := s.generator.GenerateStream(genCtx, inference.Request{
			Prompt:        data.Prompt,
			MaxTokens:     data.MaxTokens,
			StopSequences: s.cfg.StopSequences,
		})
		if err != nil {
			result = classify(genCtx, err)
		} else {
			result = s.relay(genCtx, sessionID, data, stream, obs, &content, &tokens, started)
			if m := stream.Model(); m != "" {
				model = m
			}
			if closeErr := stream.Close(); closeErr != nil {
				log.Debug().Err(closeErr).Msg("closing inference stream")
			}
		}
	}

	elapsed := time.Since(started)
	s.persist(ctx, log, data.AssistantMessageID, content.String(), conversation.GenerationMetadata{
		TokenCount:       tokens,
		Model:            model,
		CompletionTimeMs: elapsed.Milliseconds(),
		Status:           messageStatus(result.state),
	})

	if result.state == session.StateCompleted {
		if err := obs.OnComplete(CompleteEvent{
			MessageID:        data.AssistantMessageID,
			TokenCount:       tokens,
			CompletionTimeMs: elapsed.Milliseconds(),
		}); err != nil {
			log.Debug().Err(err).Msg("client missed the complete event")
		}
	} else {
		if result.cause != nil {
			log.Error().Err(result.cause).Str("error_type", string(result.errorType)).Int("tokens", tokens).Msg("generation failed")
			span.RecordError(result.cause)
			span.SetStatus(codes.Error, string(result.errorType))
		}
		if err := obs.OnError(ErrorEvent{Error: result.message, ErrorType: result.errorType}); err != nil {
			log.Debug().Err(err).Msg("client missed the error event")
		}
	}

	s.recorder.SessionFinished(string(result.state), tokens, elapsed)
	span.SetAttributes(attribute.Int("stream.tokens", tokens), attribute.String("stream.outcome", string(result.state)))
	log.Info().
		Str("outcome", string(result.state)).
		Int("tokens", tokens).
		Dur("elapsed", elapsed).
		Msg("stream session finished")
	return nil
}

// relay forwards increments until the upstream ends or ctx is cancelled. The
// producer goroutine blocks on Recv so cancellation is observed here without
// waiting for the next upstream increment.
func (s *Service) relay(
	ctx context.Context,
	sessionID string,
	data session.PendingPayload,
	stream inference.Stream,
	obs Observer,
	content *strings.Builder,
	tokens *int,
	started time.Time,
) outcome {
	increments := make(chan string)
	upstreamErr := make(chan error, 1)
	go func() {
		for {
			text, err := stream.Recv()
			if err != nil {
				upstreamErr <- err
				return
			}
			select {
			case increments <- text:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return outcomeCancelled
		case text := <-increments:
			if text == "" {
				continue
			}
			if *tokens == 0 {
				s.recorder.FirstToken(time.Since(started))
			}
			content.WriteString(text)
			*tokens++
			if err := obs.OnToken(TokenEvent{Token: text, MessageID: data.AssistantMessageID, SessionID: sessionID}); err != nil {
				return outcomeCancelled
			}
		case err := <-upstreamErr:
			return classify(ctx, err)
		case <-ticker.C:
			if err := obs.OnPing(); err != nil {
				return outcomeCancelled
			}
		}
	}
}

func classify(ctx context.Context, err error) outcome {
	switch {
	case errors.Is(err, io.EOF):
		return outcomeCompleted
	case ctx.Err() != nil, platformerrors.IsErrorType(err, platformerrors.ErrorTypeCancelled):
		return outcomeCancelled
	case platformerrors.IsErrorType(err, platformerrors.ErrorTypeTimeout), errors.Is(err, context.DeadlineExceeded):
		return outcomeFailed(ErrorTypeTimeout, err)
	default:
		return outcomeFailed(ErrorTypeServiceError, err)
	}
}

func messageStatus(state session.State) conversation.MessageStatus {
	switch state {
	case session.StateCompleted:
		return conversation.MessageStatusCompleted
	case session.StateCancelled:
		return conversation.MessageStatusCancelled
	default:
		return conversation.MessageStatusFailed
	}
}

// persist writes the final content once. It runs detached from ctx so a
// client disconnect does not lose the partial answer.
func (s *Service) persist(ctx context.Context, log zerolog.Logger, messageID uint, content string, metadata conversation.GenerationMetadata) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	defer cancel()

	if err := s.repo.UpdateMessageContentAndMetadata(persistCtx, messageID, content, metadata); err != nil {
		log.Error().Err(err).Str("status", string(metadata.Status)).Msg("failed to persist assistant message")
	}
}

func (s *Service) markPlaceholder(ctx context.Context, messageID uint, status conversation.MessageStatus) {
	s.persist(ctx, s.log.With().Uint("message_id", messageID).Logger(), messageID, "", conversation.GenerationMetadata{
		Model:  s.cfg.Model,
		Status: status,
	})
}

// CancelSession requests cancellation. It reports false when the session is
// unknown or its generation has already ended. A running generation is only
// signalled; the attached stream performs cleanup.
func (s *Service) CancelSession(ctx context.Context, sessionID string) bool {
	snap, ok := s.registry.Cancel(sessionID)
	if !ok {
		return false
	}

	if snap.State == session.StatePending {
		s.markPlaceholder(ctx, snap.Data.AssistantMessageID, conversation.MessageStatusCancelled)
		s.recorder.SessionFinished(string(session.StateCancelled), 0, 0)
	}
	s.log.Info().
		Str("session_id", sessionID).
		Str("previous_state", string(snap.State)).
		Msg("stream session cancelled")
	return true
}

// SessionStatus returns the current state of a registered session.
func (s *Service) SessionStatus(sessionID string) (StatusView, bool) {
	snap, ok := s.registry.Get(sessionID)
	if !ok {
		return StatusView{}, false
	}
	return StatusView{
		SessionID:      snap.ID,
		State:          snap.State,
		ConversationID: snap.Data.ConversationID,
		MessageID:      snap.Data.AssistantMessageID,
		CreatedAt:      snap.CreatedAt,
	}, true
}

// SweepSessions removes abandoned sessions. Placeholders of sessions that were
// never attached are marked failed.
func (s *Service) SweepSessions(ctx context.Context) int {
	removed := s.registry.SweepExpired()
	for _, snap := range removed {
		if snap.State == session.StatePending {
			s.markPlaceholder(ctx, snap.Data.AssistantMessageID, conversation.MessageStatusFailed)
		}
	}
	if len(removed) > 0 {
		s.recorder.SessionsSwept(len(removed))
		s.log.Info().Int("removed", len(removed)).Msg("swept stale stream sessions")
	}
	return len(removed)
}
