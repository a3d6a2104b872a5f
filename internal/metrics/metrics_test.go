package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStage(t *testing.T) {
	before := testutil.ToFloat64(stageTotal.WithLabelValues(StageTranslate, OutcomeSuccess))
	RecordStage(StageTranslate, OutcomeSuccess, 0.2)
	after := testutil.ToFloat64(stageTotal.WithLabelValues(StageTranslate, OutcomeSuccess))

	if after-before != 1 {
		t.Errorf("stage counter delta = %v, want 1", after-before)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	before := testutil.ToFloat64(cacheLookups.WithLabelValues("memory", "hit"))
	RecordCacheLookup("memory", true)
	RecordCacheLookup("memory", false)
	after := testutil.ToFloat64(cacheLookups.WithLabelValues("memory", "hit"))

	if after-before != 1 {
		t.Errorf("hit counter delta = %v, want 1", after-before)
	}
}

func TestSetSessionActive(t *testing.T) {
	SetSessionActive(true)
	if v := testutil.ToFloat64(sessionActive); v != 1 {
		t.Errorf("gauge = %v, want 1", v)
	}
	SetSessionActive(false)
	if v := testutil.ToFloat64(sessionActive); v != 0 {
		t.Errorf("gauge = %v, want 0", v)
	}
}
