package tokenbudget

import (
	"math"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// DefaultCharsPerToken is a conservative characters-per-token ratio for
// Llama-family tokenizers. Other backends should configure their own.
const DefaultCharsPerToken = 4.0

// Limits are the fixed parameters a budget is computed against.
type Limits struct {
	Ceiling      int
	SafetyBuffer int
	MinResponse  int
}

// Budget is the outcome of ComputeMaxResponseTokens.
type Budget struct {
	PromptTokens      int
	MaxResponseTokens int
	SafetyBuffer      int
	Ceiling           int
	// Degraded is set when even MinResponse would overrun the ceiling and
	// MaxResponseTokens is the residual space (possibly 0).
	Degraded bool
}

// Fits reports whether prompt + response + buffer stays within the ceiling.
func (b Budget) Fits() bool {
	return b.PromptTokens+b.MaxResponseTokens+b.SafetyBuffer <= b.Ceiling
}

// Estimator approximates token counts from character counts.
type Estimator struct {
	charsPerToken float64
	log           zerolog.Logger
}

func NewEstimator(charsPerToken float64, log zerolog.Logger) *Estimator {
	if charsPerToken <= 0 || math.IsNaN(charsPerToken) || math.IsInf(charsPerToken, 0) {
		charsPerToken = DefaultCharsPerToken
	}
	return &Estimator{
		charsPerToken: charsPerToken,
		log:           log.With().Str("component", "token-budget").Logger(),
	}
}

func (e *Estimator) CharsPerToken() float64 {
	return e.charsPerToken
}

// EstimateTokens rounds up, so any non-empty text costs at least one token.
func (e *Estimator) EstimateTokens(text string) int {
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return 0
	}
	return int(math.Ceil(float64(runes) / e.charsPerToken))
}

// ComputeMaxResponseTokens returns the largest response size that keeps
// prompt + response + safety buffer under the ceiling, falling back to the
// minimum response when history is long, and to the residual when even the
// minimum does not fit.
func (e *Estimator) ComputeMaxResponseTokens(prompt string, limits Limits) Budget {
	promptTokens := e.EstimateTokens(prompt)
	available := limits.Ceiling - promptTokens - limits.SafetyBuffer

	budget := Budget{
		PromptTokens: promptTokens,
		SafetyBuffer: limits.SafetyBuffer,
		Ceiling:      limits.Ceiling,
	}

	if available >= limits.MinResponse {
		budget.MaxResponseTokens = available
		return budget
	}

	if promptTokens+limits.MinResponse+limits.SafetyBuffer <= limits.Ceiling {
		budget.MaxResponseTokens = limits.MinResponse
		e.log.Warn().
			Int("prompt_tokens", promptTokens).
			Int("available", available).
			Int("min_response", limits.MinResponse).
			Msg("conversation history is long, using minimum response budget")
		return budget
	}

	budget.MaxResponseTokens = max(0, available)
	budget.Degraded = true
	e.log.Error().
		Int("prompt_tokens", promptTokens).
		Int("ceiling", limits.Ceiling).
		Int("safety_buffer", limits.SafetyBuffer).
		Int("max_response_tokens", budget.MaxResponseTokens).
		Msg("prompt too long to serve minimum response, budget degraded")
	return budget
}
