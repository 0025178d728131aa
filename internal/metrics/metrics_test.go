package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveAnalysis(t *testing.T) {
	success := testutil.ToFloat64(AnalysesTotal.WithLabelValues(OutcomeSuccess))
	insufficient := testutil.ToFloat64(AnalysesTotal.WithLabelValues(OutcomeInsufficientData))

	ObserveAnalysis(OutcomeSuccess, 3*time.Millisecond, 0.8)
	ObserveAnalysis(OutcomeInsufficientData, time.Millisecond, 0)

	if got := testutil.ToFloat64(AnalysesTotal.WithLabelValues(OutcomeSuccess)); got != success+1 {
		t.Errorf("success count = %v, want %v", got, success+1)
	}
	if got := testutil.ToFloat64(AnalysesTotal.WithLabelValues(OutcomeInsufficientData)); got != insufficient+1 {
		t.Errorf("insufficient_data count = %v, want %v", got, insufficient+1)
	}
}
