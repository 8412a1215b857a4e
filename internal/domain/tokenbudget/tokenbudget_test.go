package tokenbudget

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

var defaultLimits = Limits{Ceiling: 22800, SafetyBuffer: 100, MinResponse: 500}

func newTestEstimator() *Estimator {
	return NewEstimator(DefaultCharsPerToken, zerolog.Nop())
}

func TestEstimateTokens(t *testing.T) {
	e := newTestEstimator()
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "two chars rounds up", text: "Hi", want: 1},
		{name: "single char", text: "a", want: 1},
		{name: "exact multiple", text: "abcdefgh", want: 2},
		{name: "one over multiple", text: "abcdefghi", want: 3},
		{name: "multibyte counts runes", text: "héllo wörld", want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.EstimateTokens(tt.text); got != tt.want {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestNewEstimatorFallsBackOnInvalidRatio(t *testing.T) {
	for _, ratio := range []float64{0, -1} {
		if got := NewEstimator(ratio, zerolog.Nop()).CharsPerToken(); got != DefaultCharsPerToken {
			t.Errorf("ratio %v: CharsPerToken() = %v, want %v", ratio, got, DefaultCharsPerToken)
		}
	}
	if got := NewEstimator(3.2, zerolog.Nop()).EstimateTokens(strings.Repeat("x", 10)); got != 4 {
		t.Errorf("EstimateTokens with ratio 3.2 = %d, want 4", got)
	}
}

func TestComputeMaxResponseTokens(t *testing.T) {
	e := newTestEstimator()
	tests := []struct {
		name         string
		promptChars  int
		wantMax      int
		wantDegraded bool
	}{
		{name: "empty prompt", promptChars: 0, wantMax: 22700},
		{name: "5000 token prompt", promptChars: 20000, wantMax: 17700},
		{name: "exactly min response available", promptChars: 4 * 22200, wantMax: 500},
		{name: "one token below minimum", promptChars: 4 * 22201, wantMax: 499, wantDegraded: true},
		{name: "90k chars degraded", promptChars: 90000, wantMax: 200, wantDegraded: true},
		{name: "over ceiling clamps to zero", promptChars: 4 * 30000, wantMax: 0, wantDegraded: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := e.ComputeMaxResponseTokens(strings.Repeat("a", tt.promptChars), defaultLimits)
			if b.MaxResponseTokens != tt.wantMax {
				t.Errorf("MaxResponseTokens = %d, want %d", b.MaxResponseTokens, tt.wantMax)
			}
			if b.Degraded != tt.wantDegraded {
				t.Errorf("Degraded = %v, want %v", b.Degraded, tt.wantDegraded)
			}
		})
	}
}

func TestMinimumResponseBoundary(t *testing.T) {
	e := newTestEstimator()
	limits := Limits{Ceiling: 1000, SafetyBuffer: 10, MinResponse: 100}

	b := e.ComputeMaxResponseTokens(strings.Repeat("a", 4*890), limits)
	if b.MaxResponseTokens != 100 || b.Degraded {
		t.Fatalf("got %+v, want exactly the minimum, not degraded", b)
	}

	b = e.ComputeMaxResponseTokens(strings.Repeat("a", 4*891), limits)
	if b.MaxResponseTokens != 99 || !b.Degraded {
		t.Fatalf("got %+v, want residual 99, degraded", b)
	}
}

func TestBudgetInvariantHolds(t *testing.T) {
	e := newTestEstimator()
	limitsSet := []Limits{
		defaultLimits,
		{Ceiling: 4096, SafetyBuffer: 50, MinResponse: 256},
		{Ceiling: 8192, SafetyBuffer: 0, MinResponse: 1},
	}
	for _, limits := range limitsSet {
		for chars := 0; chars <= 4*limits.Ceiling+400; chars += 37 {
			b := e.ComputeMaxResponseTokens(strings.Repeat("z", chars), limits)
			// only a prompt that alone overruns the ceiling may break the
			// invariant, and then the response budget must be zero
			if !b.Fits() && (!b.Degraded || b.MaxResponseTokens != 0) {
				t.Fatalf("limits %+v chars %d: invariant violated: %+v", limits, chars, b)
			}
			if b.MaxResponseTokens < 0 {
				t.Fatalf("negative budget %+v", b)
			}
		}
	}
}

func TestBudgetMonotonic(t *testing.T) {
	e := newTestEstimator()
	prev := e.ComputeMaxResponseTokens("", defaultLimits).MaxResponseTokens
	for chars := 1; chars <= 100000; chars += 113 {
		got := e.ComputeMaxResponseTokens(strings.Repeat("m", chars), defaultLimits).MaxResponseTokens
		if got > prev {
			t.Fatalf("budget increased from %d to %d at %d chars", prev, got, chars)
		}
		prev = got
	}
}
