package monitoring

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	// Two collectors must not collide on registration.
	a := NewMetrics()
	b := NewMetrics()

	a.RecordFrame(LegScale, DirectionOut, 10)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.FramesTotal.WithLabelValues(LegScale, DirectionOut)))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FramesTotal.WithLabelValues(LegScale, DirectionOut)))
}

func TestRecordRequestSnapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("relay", "ok", time.Millisecond)
	m.RecordRequest("relay", "Timeout", time.Millisecond)
	m.ConnectionOpened("relay")
	m.RecordTile("arena", true, time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.Equal(t, int64(1), snap.ActiveConnections)
	assert.Equal(t, int64(1), snap.TilesProcessed)

	m.ConnectionClosed("relay")
	assert.Equal(t, int64(0), m.Snapshot().ActiveConnections)

	fields := make(map[string]int64)
	for _, f := range m.Snapshot().Fields() {
		fields[f.Key] = f.Integer
	}
	assert.Equal(t, map[string]int64{"requests": 2, "failures": 1, "active_connections": 0, "tiles": 1}, fields)
}

func TestTimerRecords(t *testing.T) {
	m := NewMetrics()
	timer := NewTimer(m, "scale")
	d := timer.Stop("DecodeFailure")

	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("scale", "DecodeFailure")))

	// A timer without metrics still measures.
	assert.GreaterOrEqual(t, NewTimer(nil, "scale").Stop("ok"), time.Duration(0))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordArtifact(1234)
	m.SetLifecycleState(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "tilerelay_artifacts_persisted_total 1"))
	assert.True(t, strings.Contains(body, "tilerelay_lifecycle_state 1"))
	assert.True(t, strings.Contains(body, "tilerelay_uptime_seconds"))
}
