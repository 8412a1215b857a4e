package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStreamRecorder(t *testing.T) {
	r := NewStreamRecorder()

	beforeStarted := testutil.ToFloat64(SessionsStartedTotal)
	beforeDegraded := testutil.ToFloat64(BudgetDegradedTotal)
	beforeTokens := testutil.ToFloat64(TokensStreamedTotal)
	beforeCompleted := testutil.ToFloat64(SessionsFinishedTotal.WithLabelValues("completed"))

	r.SessionStarted(true)
	r.SessionFinished("completed", 12, 2*time.Second)

	if got := testutil.ToFloat64(SessionsStartedTotal) - beforeStarted; got != 1 {
		t.Errorf("sessions started delta = %v", got)
	}
	if got := testutil.ToFloat64(BudgetDegradedTotal) - beforeDegraded; got != 1 {
		t.Errorf("budget degraded delta = %v", got)
	}
	if got := testutil.ToFloat64(TokensStreamedTotal) - beforeTokens; got != 12 {
		t.Errorf("tokens delta = %v", got)
	}
	if got := testutil.ToFloat64(SessionsFinishedTotal.WithLabelValues("completed")) - beforeCompleted; got != 1 {
		t.Errorf("completed delta = %v", got)
	}
}

func TestSessionsCollector(t *testing.T) {
	c := NewSessionsCollector(func() map[string]int {
		return map[string]int{"pending": 2, "active": 1}
	})
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	expected := `
# HELP jan_chat_stream_sessions Sessions currently held in the registry by state
# TYPE jan_chat_stream_sessions gauge
jan_chat_stream_sessions{state="active"} 1
jan_chat_stream_sessions{state="pending"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "jan_chat_stream_sessions"); err != nil {
		t.Error(err)
	}
}
