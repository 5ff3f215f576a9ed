package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("search_resync_products").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("search_resync_products").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("search_resync_products", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("search_resync_products", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("search_resync_products")))
}

func TestAddDocuments(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddDocuments("products", 3)
	m.AddDocuments("products", 0)
	require.Equal(t, 3.0, testutil.ToFloat64(m.documents.WithLabelValues("products")))

	var nilMetrics *Metrics
	nilMetrics.AddDocuments("products", 1)
	require.NoError(t, nilMetrics.Track("noop").End(nil))
}
