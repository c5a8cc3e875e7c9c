package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordDetection("BTC", "1h", false)
	r.RecordDetection("BTC", "1h", true)
	r.RecordDetection("BTC", "1h", true)
	r.RecordStaleDiscard()
	r.RecordBatch(0, 1.5)
	r.RecordBatch(2, 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.detections.WithLabelValues("BTC", "1h", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.detections.WithLabelValues("BTC", "1h", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.staleBatches))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.batches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.batches.WithLabelValues("partial")))
}

func TestRecordersUseSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegisterer(prometheus.NewRegistry())
		NewWithRegisterer(prometheus.NewRegistry())
	})
}
