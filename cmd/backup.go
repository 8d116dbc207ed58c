package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"suite-backup/internal/application"
	"suite-backup/internal/backup"
	"suite-backup/internal/confirmation"
	appErrors "suite-backup/internal/errors"

	"github.com/spf13/cobra"
)

var (
	includeMedia bool
	includeLogs  bool
	assumeYes    bool
	pruneDryRun  bool
	downloadPath string
	forceWrite   bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list, restore and manage backups",
	Long: `Create, list, restore and manage backup archives.

Archives live in the configured backup directory and are named
<type>_backup_<date>_<time>.zip, where type is proyecto, database or
complete. Offsite copies go to the configured remote provider.

Examples:
  # Back up the application files including media
  suite-backup backup create project --media

  # Back up only the database
  suite-backup backup create database

  # Show what retention would delete
  suite-backup backup prune --dry-run

  # Copy an archive offsite and fetch it back on another host
  suite-backup backup push complete_backup_2024-05-01_10-00-00.zip
  suite-backup backup fetch complete_backup_2024-05-01_10-00-00.zip.enc`,
}

func init() {
	rootCmd.AddCommand(backupCmd)

	createCmd := &cobra.Command{
		Use:       "create <project|database|complete>",
		Short:     "Create a backup archive",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(backup.TypeProject), string(backup.TypeDatabase), string(backup.TypeComplete)},
		RunE:      runBackupCreate,
	}
	createCmd.Flags().BoolVar(&includeMedia, "media", false, "include uploaded media")
	createCmd.Flags().BoolVar(&includeLogs, "logs", false, "include the logs directory")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List backup archives, newest first",
		Args:  cobra.NoArgs,
		RunE:  runBackupList,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <filename>",
		Short: "Delete a backup archive",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupDelete,
	}
	deleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")

	downloadCmd := &cobra.Command{
		Use:   "download <filename>",
		Short: "Copy a backup archive out of the backup directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupDownload,
	}
	downloadCmd.Flags().StringVarP(&downloadPath, "dest", "d", "", "destination file, - for stdout (default is the archive name in the working directory)")
	downloadCmd.Flags().BoolVar(&forceWrite, "force", false, "overwrite an existing destination")

	restoreCmd := &cobra.Command{
		Use:   "restore <filename>",
		Short: "Restore a backup archive after taking a safety backup",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupRestore,
	}
	restoreCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archives outside the retention policy",
		Args:  cobra.NoArgs,
		RunE:  runBackupPrune,
	}
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "only list what would be deleted")
	pruneCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")

	pushCmd := &cobra.Command{
		Use:   "push <filename>",
		Short: "Copy an archive to the remote provider",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupPush,
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch <name>",
		Short: "Download an offsite copy into the backup directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupFetch,
	}

	remoteCmd := &cobra.Command{
		Use:   "remote-list",
		Short: "List offsite copies",
		Args:  cobra.NoArgs,
		RunE:  runRemoteList,
	}

	backupCmd.AddCommand(createCmd, listCmd, deleteCmd, downloadCmd, restoreCmd, pruneCmd, pushCmd, fetchCmd, remoteCmd)
}

// confirm builds the prompt used before destructive operations
var confirm = func(assumeYes bool) *confirmation.Service {
	return confirmation.NewService(assumeYes)
}

// fileOnly skips the database connection for commands that never touch it
var fileOnly = application.Options{SkipDatabase: true}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	kind := backup.ArchiveType(args[0])
	if !kind.Valid() {
		return appErrors.NewValidationError(fmt.Sprintf("unknown backup type %q", args[0]), nil).
			WithUserMessage("Backup type must be project, database or complete")
	}
	opts := application.Options{SkipDatabase: kind == backup.TypeProject}

	return withApp(cmd, opts, func(ctx context.Context, r *runner) error {
		spinner := r.out.StartSpinner(fmt.Sprintf("Creating %s backup", kind))
		var created *backup.BackupArchive
		var err error
		switch kind {
		case backup.TypeProject:
			created, err = r.app.Manager().CreateProjectBackup(ctx, includeMedia, includeLogs)
		case backup.TypeDatabase:
			created, err = r.app.Manager().CreateDatabaseBackup(ctx)
		default:
			created, err = r.app.Manager().CreateCompleteBackup(ctx, includeMedia, includeLogs)
		}
		spinner.Stop("")
		return r.finish(created, err)
	})
}

func runBackupList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, fileOnly, func(ctx context.Context, r *runner) error {
		archives, err := r.app.Manager().ListBackups(ctx)
		return r.finish(archives, err)
	})
}

func runBackupDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	return withApp(cmd, fileOnly, func(ctx context.Context, r *runner) error {
		if _, err := r.app.Manager().Catalog().Get(name); err != nil {
			return err
		}
		ok, err := confirm(assumeYes).Confirm(ctx, confirmation.ForDelete(name))
		if err != nil || !ok {
			return err
		}
		err = r.app.Manager().DeleteBackup(ctx, name)
		return r.finish(map[string]string{"filename": name}, err)
	})
}

func runBackupDownload(cmd *cobra.Command, args []string) error {
	name := args[0]
	return withApp(cmd, fileOnly, func(ctx context.Context, r *runner) error {
		d, err := r.app.Manager().DownloadBackup(ctx, name)
		if err != nil {
			return err
		}
		defer d.Close()

		if downloadPath == "-" {
			_, err := io.Copy(cmd.OutOrStdout(), d.Content)
			return err
		}
		dest := downloadPath
		if dest == "" {
			dest = d.Filename
		}
		if err := copyToFile(dest, d.Content, forceWrite); err != nil {
			return err
		}
		r.out.Success(fmt.Sprintf("Saved %s (%s) to %s", d.Filename, backup.FormatSize(d.Size), dest))
		return nil
	})
}

func copyToFile(dest string, src io.Reader, force bool) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(dest, flags, 0640)
	if err != nil {
		if os.IsExist(err) {
			return appErrors.NewValidationError(fmt.Sprintf("%s already exists", dest), err).
				WithUserMessage(fmt.Sprintf("%s already exists; use --force to overwrite it", dest))
		}
		return appErrors.NewIOError(fmt.Sprintf("cannot create %s", dest), err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(dest)
		return appErrors.NewIOError(fmt.Sprintf("failed to write %s", dest), err)
	}
	return f.Close()
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	name := args[0]
	return withApp(cmd, application.Options{}, func(ctx context.Context, r *runner) error {
		archive, err := r.app.Manager().Catalog().Get(name)
		if err != nil {
			return err
		}
		ok, err := confirm(assumeYes).Confirm(ctx, confirmation.ForRestore(*archive))
		if err != nil || !ok {
			return err
		}

		spinner := r.out.StartSpinner("Restoring " + name)
		result, err := r.app.Manager().RestoreBackup(ctx, name)
		spinner.Stop("")
		return r.finish(result, err)
	})
}

func runBackupPrune(cmd *cobra.Command, args []string) error {
	return withApp(cmd, fileOnly, func(ctx context.Context, r *runner) error {
		mgr := r.app.Manager()
		planned, err := mgr.PruneBackups(ctx, true)
		if err != nil || pruneDryRun || len(planned.Deleted) == 0 {
			return r.finish(planned, err)
		}

		ok, err := confirm(assumeYes).Confirm(ctx, confirmation.ForDelete(planned.Deleted...))
		if err != nil || !ok {
			return err
		}
		result, err := mgr.PruneBackups(ctx, false)
		return r.finish(result, err)
	})
}

func runBackupPush(cmd *cobra.Command, args []string) error {
	return withApp(cmd, fileOnly, func(ctx context.Context, r *runner) error {
		spinner := r.out.StartSpinner("Uploading " + args[0])
		obj, err := r.app.Manager().PushBackup(ctx, args[0])
		spinner.Stop("")
		return r.finish(obj, err)
	})
}

func runBackupFetch(cmd *cobra.Command, args []string) error {
	return withApp(cmd, fileOnly, func(ctx context.Context, r *runner) error {
		spinner := r.out.StartSpinner("Downloading " + args[0])
		fetched, err := r.app.Manager().FetchBackup(ctx, args[0])
		spinner.Stop("")
		return r.finish(fetched, err)
	})
}

func runRemoteList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, fileOnly, func(ctx context.Context, r *runner) error {
		objects, err := r.app.Manager().RemoteList(ctx)
		return r.finish(objects, err)
	})
}
