package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRetryMetrics_RecordAttempt(t *testing.T) {
	m := NewRetryMetrics()
	m.Reset()

	m.RecordAttempt("ci_dispatch", "success", "none", 0.05)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("ci_dispatch", "success", "none")))
}

func TestRetryMetrics_RecordFinalAttempt(t *testing.T) {
	m := NewRetryMetrics()
	m.Reset()

	m.RecordFinalAttempt("rollback_ssh_connect", "failure", 3)

	assert.Equal(t, 1, testutil.CollectAndCount(m.FinalAttemptsTotal))
}

func TestRetryMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *RetryMetrics
	assert.NotPanics(t, func() {
		m.RecordAttempt("op", "success", "none", 0.01)
		m.RecordBackoff("op", 0.1)
		m.RecordFinalAttempt("op", "success", 1)
		m.Reset()
	})
}
