package backup

import (
	"errors"
	"testing"
	"time"

	appErrors "suite-backup/internal/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_ObserveOperation(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveOperation("create", TypeProject, nil, time.Second)
	m.ObserveOperation("create", TypeProject, appErrors.NewPartialFailure("skipped", 1, nil), time.Second)
	m.ObserveOperation("create", TypeProject, errors.New("boom"), time.Second)
	m.ObserveOperation("create", TypeProject, nil, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("create", "project", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("create", "project", "partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("create", "project", "error")))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccessStamp.WithLabelValues("create")), 0.0)
}

func TestMetrics_Catalog(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveCatalog([]BackupArchive{{Size: 100}, {Size: 250}})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.catalogArchives))
	assert.Equal(t, 350.0, testutil.ToFloat64(m.catalogBytes))

	m.ObserveArchive(TypeDatabase, 4096)
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.archiveSize.WithLabelValues("database")))
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveStatements(12)
	m.ObserveStatements(0)
	m.ObservePruned(3)
	m.ObserveRemote("push", nil)
	m.ObserveRemote("fetch", errors.New("offline"))

	assert.Equal(t, 12.0, testutil.ToFloat64(m.statementsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.prunedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteTransfers.WithLabelValues("push", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteTransfers.WithLabelValues("fetch", "error")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("create", TypeComplete, nil, time.Second)
		m.ObserveArchive(TypeComplete, 1)
		m.ObserveCatalog(nil)
		m.ObserveStatements(1)
		m.ObserveRemote("push", nil)
		m.ObservePruned(1)
	})
}

func TestMetrics_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
