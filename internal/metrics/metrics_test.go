package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIsRegistryScoped(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics()
	b := NewMetrics()

	a.RecordQuery("propose", "success", time.Millisecond, 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.QueryOperationsTotal.WithLabelValues("propose", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.QueryOperationsTotal.WithLabelValues("propose", "success")))
}

func TestRecorders(t *testing.T) {
	m := NewMetrics()

	m.RecordGrpcRequest("Propose", "OK", time.Millisecond)
	m.RecordHTTPRequest("/api/state", "200", time.Millisecond)
	m.RecordHTTPRequest("/api/state", "200", time.Millisecond)
	m.RecordDbOperation("load_matrix", "success", time.Millisecond)
	m.RecordQuery("values", "error", time.Millisecond, -1)
	m.UpdateMatrixStats(12, 40)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GrpcRequestsTotal.WithLabelValues("Propose", "OK")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/api/state", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DbOperationsTotal.WithLabelValues("load_matrix", "success")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.MatrixCharacters))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.MatrixItems))

	count, err := testutil.GatherAndCount(m.Registry(), "deltakey_query_survivors")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpdateUptime(t *testing.T) {
	m := NewMetrics()
	m.ServerStartTime = time.Now().Add(-time.Minute)
	m.UpdateUptime()
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.ServerUptimeSeconds), 60.0)
}
