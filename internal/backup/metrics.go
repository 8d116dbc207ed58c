package backup

import (
	"time"

	appErrors "suite-backup/internal/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes engine activity to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	operations       *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	archiveSize      *prometheus.GaugeVec
	catalogArchives  prometheus.Gauge
	catalogBytes     prometheus.Gauge
	statementsTotal  prometheus.Counter
	remoteTransfers  *prometheus.CounterVec
	prunedTotal      prometheus.Counter
	lastSuccessStamp *prometheus.GaugeVec
}

// NewMetrics registers the engine collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "suite_backup_operations_total",
			Help: "Backup engine operations by operation, archive type and result",
		}, []string{"operation", "type", "result"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "suite_backup_operation_duration_seconds",
			Help:    "Duration of backup engine operations in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900},
		}, []string{"operation"}),

		archiveSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "suite_backup_last_archive_size_bytes",
			Help: "Size of the most recently created archive per type",
		}, []string{"type"}),

		catalogArchives: factory.NewGauge(prometheus.GaugeOpts{
			Name: "suite_backup_catalog_archives",
			Help: "Number of archives in the backup directory at the last listing",
		}),

		catalogBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "suite_backup_catalog_size_bytes",
			Help: "Total size of the backup directory at the last listing",
		}),

		statementsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "suite_backup_restore_statements_total",
			Help: "SQL statements executed by database restores",
		}),

		remoteTransfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "suite_backup_remote_transfers_total",
			Help: "Offsite transfers by direction and result",
		}, []string{"direction", "result"}),

		prunedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "suite_backup_pruned_archives_total",
			Help: "Archives removed by the retention policy",
		}),

		lastSuccessStamp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "suite_backup_last_success_timestamp_seconds",
			Help: "Unix time of the last successful operation",
		}, []string{"operation"}),
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case appErrors.IsPartialFailure(err):
		return "partial"
	default:
		return "error"
	}
}

// ObserveOperation records one finished operation
func (m *Metrics) ObserveOperation(operation string, t ArchiveType, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := resultLabel(err)
	m.operations.WithLabelValues(operation, string(t), result).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
	if result != "error" {
		m.lastSuccessStamp.WithLabelValues(operation).SetToCurrentTime()
	}
}

// ObserveArchive records the size of a freshly created archive
func (m *Metrics) ObserveArchive(t ArchiveType, size int64) {
	if m == nil {
		return
	}
	m.archiveSize.WithLabelValues(string(t)).Set(float64(size))
}

// ObserveCatalog records the current catalog contents
func (m *Metrics) ObserveCatalog(archives []BackupArchive) {
	if m == nil {
		return
	}
	var total int64
	for _, a := range archives {
		total += a.Size
	}
	m.catalogArchives.Set(float64(len(archives)))
	m.catalogBytes.Set(float64(total))
}

// ObserveStatements counts executed restore statements
func (m *Metrics) ObserveStatements(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.statementsTotal.Add(float64(n))
}

// ObserveRemote records an offsite push or fetch
func (m *Metrics) ObserveRemote(direction string, err error) {
	if m == nil {
		return
	}
	m.remoteTransfers.WithLabelValues(direction, resultLabel(err)).Inc()
}

// ObservePruned counts archives deleted by retention
func (m *Metrics) ObservePruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.prunedTotal.Add(float64(n))
}
