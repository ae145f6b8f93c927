package metrics

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m := New()

	assert.NotNil(t, m.Registry)
	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.ProviderFetchTotal)
	assert.NotNil(t, m.CacheHitsTotal)
	assert.NotNil(t, m.DBConnectionsOpen)
}

func TestObserveHelpers(t *testing.T) {
	m := New()

	m.ObserveProviderFetch("GG_", ResultOK, 120*time.Millisecond)
	m.ObserveProviderFetch("GG_", ResultTimeout, 3*time.Second)
	m.ObserveEstimate(OutcomeNoService)
	m.ObserveCacheHit("DKU_GATE")
	m.ObserveRefresh("DKU_GATE", 200*time.Millisecond, 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderFetchTotal.WithLabelValues("GG_", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderFetchTotal.WithLabelValues("GG_", ResultTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EstimatorCallsTotal.WithLabelValues(OutcomeNoService)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("DKU_GATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("DKU_GATE")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SnapshotArrivals.WithLabelValues("DKU_GATE")))
}

func TestObserveHelpers_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveProviderFetch("T_", ResultError, time.Second)
		m.ObserveEstimate(OutcomeError)
		m.ObserveCacheHit("x")
		m.ObserveRefresh("x", time.Second, 1)
		m.Shutdown()
	})
}

func TestStartDBStatsCollector_NilDB(t *testing.T) {
	m := New()
	m.StartDBStatsCollector(nil, time.Second)
	assert.False(t, m.collectorStarted.Load())
}

func TestStartDBStatsCollector_Idempotent(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	m := New()
	m.StartDBStatsCollector(db, 100*time.Millisecond)
	assert.True(t, m.collectorStarted.Load())

	m.StartDBStatsCollector(db, 100*time.Millisecond)
	assert.True(t, m.collectorStarted.Load())

	m.Shutdown()
}

func TestStartDBStatsCollector_CollectsStats(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, db.Ping())

	m := New()
	m.StartDBStatsCollector(db, 20*time.Millisecond)
	defer m.Shutdown()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.DBConnectionsOpen) >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestShutdown_Repeatable(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	m := New()
	m.StartDBStatsCollector(db, 50*time.Millisecond)
	m.Shutdown()
	m.Shutdown()
}
