package backup

import (
	"context"
	"time"

	appErrors "suite-backup/internal/errors"
)

// RetentionPolicy bounds the catalog. Zero values disable a rule.
type RetentionPolicy struct {
	KeepLast int
	MaxAge   time.Duration
}

// Enabled reports whether any rule is set
func (p RetentionPolicy) Enabled() bool {
	return p.KeepLast > 0 || p.MaxAge > 0
}

// selectExpired returns the archives the policy removes. archives must be
// sorted newest first. The newest archive is always kept.
func selectExpired(archives []BackupArchive, policy RetentionPolicy, now time.Time) []BackupArchive {
	if !policy.Enabled() || len(archives) <= 1 {
		return nil
	}

	var cutoff time.Time
	if policy.MaxAge > 0 {
		cutoff = now.Add(-policy.MaxAge)
	}

	var expired []BackupArchive
	for i, a := range archives {
		if i == 0 {
			continue
		}
		byCount := policy.KeepLast > 0 && i >= policy.KeepLast
		byAge := policy.MaxAge > 0 && a.CreatedAt.Before(cutoff)
		if byCount || byAge {
			expired = append(expired, a)
		}
	}
	return expired
}

// PruneBackups applies the configured retention policy. With dryRun nothing
// is deleted and the result lists what would be.
func (m *Manager) PruneBackups(ctx context.Context, dryRun bool) (*PruneResult, error) {
	start := time.Now()
	policy := RetentionPolicy{KeepLast: m.settings.KeepLast, MaxAge: m.settings.MaxAge}

	archives, err := m.catalog.List(ctx)
	if err != nil {
		return nil, err
	}

	expired := selectExpired(archives, policy, m.now())
	result := &PruneResult{Deleted: []string{}, Kept: len(archives) - len(expired), DryRun: dryRun}

	var failures []error
	for _, a := range expired {
		if dryRun {
			result.Deleted = append(result.Deleted, a.Filename)
			result.Freed += a.Size
			continue
		}
		size, err := m.catalog.Delete(a.Filename)
		if err != nil {
			m.logger.WithError(err).WithField("archive", a.Filename).Warn("Retention could not delete archive")
			failures = append(failures, err)
			result.Kept++
			continue
		}
		result.Deleted = append(result.Deleted, a.Filename)
		result.Freed += size
	}

	if len(failures) > 0 {
		err = appErrors.NewPartialFailure("some expired archives could not be deleted", len(failures), failures)
	}

	if !dryRun {
		m.metrics.ObservePruned(len(result.Deleted))
		m.metrics.ObserveOperation("prune", "", err, time.Since(start))
		if len(result.Deleted) > 0 || err != nil {
			m.record(ctx, "prune_backups", m.settings.BackupDir, err, map[string]interface{}{
				"deleted":     result.Deleted,
				"freed_bytes": result.Freed,
				"keep_last":   policy.KeepLast,
				"max_age":     policy.MaxAge.String(),
			})
		}
	}
	m.logger.WithFields(map[string]interface{}{
		"deleted": len(result.Deleted),
		"kept":    result.Kept,
		"dry_run": dryRun,
	}).Info("Retention applied")
	return result, err
}
