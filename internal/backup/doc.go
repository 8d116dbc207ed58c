// Package backup packages the application tree and its MySQL database into
// zip archives, catalogs them and restores them.
//
// Three archive types exist:
//
//   - project: the filtered application tree at the archive root
//   - database: database_dump.sql plus restore.sh and restore.bat
//   - complete: proyecto/ and database/ side by side, with a README.md
//
// Every archive carries backup_info.json, which is the authority for its
// type, and a human-readable backup_info.txt. Archives are staged in a unique
// temp directory, written to a .partial file and renamed once complete, so an
// archive visible in the backup directory is never half written.
//
// A restore extracts into its own temp directory and checks everything it
// needs before changing anything. Each resource it is about to overwrite is
// first saved in a "pre_restore" safety backup; if the restore fails midway
// that archive is the way back.
//
// Example:
//
//	settings, err := backup.NewSettings(cfg)
//	if err != nil {
//		return err
//	}
//	mgr, err := backup.NewManager(settings, handle, logger,
//		backup.WithAudit(audit),
//		backup.WithMetrics(backup.NewMetrics(prometheus.DefaultRegisterer)))
//	if err != nil {
//		return err
//	}
//
//	ctx = backup.WithActor(ctx, "admin")
//	created, err := mgr.CreateCompleteBackup(ctx, true, false)
//	if err != nil && !errors.IsPartialFailure(err) {
//		return err
//	}
//	result, err := mgr.RestoreBackup(ctx, created.Filename)
//
// Offsite copies go through a RemoteStore (local directory, S3, Azure Blob
// Storage or Google Cloud Storage), optionally sealed by an Encryptor.
package backup
