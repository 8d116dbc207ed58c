package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	appErrors "suite-backup/internal/errors"
)

// writeRestoreScripts drops restore.sh and restore.bat next to the dump so an
// operator can replay it with the mysql client when the engine is unavailable.
func writeRestoreScripts(dir string, m *Manifest) error {
	db := DatabaseInfo{Host: "localhost", Port: 3306}
	if m.Database != nil {
		db = *m.Database
	}
	generated := m.CreatedAt.Format("2006-01-02 15:04:05")

	var sh strings.Builder
	sh.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&sh, "# Database restore script for %s, generated %s\n", m.System.Name, generated)
	sh.WriteString("# Usage: ./restore.sh [user] [database]\n\n")
	sh.WriteString("set -e\n")
	sh.WriteString("cd \"$(dirname \"$0\")\"\n\n")
	sh.WriteString("DB_USER=\"${1:-root}\"\n")
	fmt.Fprintf(&sh, "DB_NAME=\"${2:-%s}\"\n", db.Database)
	fmt.Fprintf(&sh, "DB_HOST=\"${DB_HOST:-%s}\"\n", db.Host)
	fmt.Fprintf(&sh, "DB_PORT=\"${DB_PORT:-%d}\"\n\n", db.Port)
	sh.WriteString("echo \"Restoring $DB_NAME on $DB_HOST:$DB_PORT...\"\n")
	fmt.Fprintf(&sh, "mysql -h \"$DB_HOST\" -P \"$DB_PORT\" -u \"$DB_USER\" -p --default-character-set=%s \"$DB_NAME\" < %s\n", charsetOrDefault(db.Charset), DumpFile)
	sh.WriteString("echo \"Restore completed\"\n")

	var bat strings.Builder
	bat.WriteString("@echo off\r\n")
	fmt.Fprintf(&bat, "REM Database restore script for %s, generated %s\r\n", m.System.Name, generated)
	bat.WriteString("REM Usage: restore.bat [user] [database]\r\n\r\n")
	bat.WriteString("cd /d \"%~dp0\"\r\n")
	bat.WriteString("set DB_USER=%1\r\n")
	bat.WriteString("if \"%DB_USER%\"==\"\" set DB_USER=root\r\n")
	bat.WriteString("set DB_NAME=%2\r\n")
	fmt.Fprintf(&bat, "if \"%%DB_NAME%%\"==\"\" set DB_NAME=%s\r\n", db.Database)
	fmt.Fprintf(&bat, "if \"%%DB_HOST%%\"==\"\" set DB_HOST=%s\r\n", db.Host)
	fmt.Fprintf(&bat, "if \"%%DB_PORT%%\"==\"\" set DB_PORT=%d\r\n\r\n", db.Port)
	bat.WriteString("echo Restoring %DB_NAME% on %DB_HOST%:%DB_PORT%...\r\n")
	fmt.Fprintf(&bat, "mysql -h %%DB_HOST%% -P %%DB_PORT%% -u %%DB_USER%% -p --default-character-set=%s %%DB_NAME%% < %s\r\n", charsetOrDefault(db.Charset), DumpFile)
	bat.WriteString("echo Restore completed\r\n")
	bat.WriteString("pause\r\n")

	if err := os.WriteFile(filepath.Join(dir, RestoreShell), []byte(sh.String()), 0755); err != nil {
		return appErrors.NewIOError("failed to write restore script", err)
	}
	if err := os.WriteFile(filepath.Join(dir, RestoreBatch), []byte(bat.String()), 0644); err != nil {
		return appErrors.NewIOError("failed to write restore script", err)
	}
	return nil
}

// writeReadme documents the layout of a complete archive
func writeReadme(dir string, m *Manifest) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Complete backup - %s\n\n", m.System.Name)
	b.WriteString("This archive holds the application files and a full database dump.\n\n")
	b.WriteString("## Contents\n\n")
	fmt.Fprintf(&b, "- **%s/**: application files\n", ProjectDir)
	fmt.Fprintf(&b, "- **%s/**: database backup\n", DatabaseDir)
	fmt.Fprintf(&b, "  - `%s`: full SQL dump\n", DumpFile)
	fmt.Fprintf(&b, "  - `%s`: restore script for Linux/macOS\n", RestoreShell)
	fmt.Fprintf(&b, "  - `%s`: restore script for Windows\n", RestoreBatch)
	fmt.Fprintf(&b, "- `%s` / `%s`: backup metadata\n\n", ManifestText, ManifestJSON)
	b.WriteString("## Manual restore\n\n")
	b.WriteString("### 1. Application files\n")
	fmt.Fprintf(&b, "Copy the contents of `%s/` into the web root.\n\n", ProjectDir)
	b.WriteString("### 2. Database\n")
	b.WriteString("1. Create an empty database on the MySQL server\n")
	b.WriteString("2. Run:\n")
	b.WriteString("   ```\n")
	fmt.Fprintf(&b, "   mysql -u [user] -p [database] < %s/%s\n", DatabaseDir, DumpFile)
	b.WriteString("   ```\n")
	b.WriteString("3. Or run one of the bundled scripts with your credentials\n\n")
	b.WriteString("### 3. Connection settings\n")
	b.WriteString("Edit `config.ini` with the credentials of the new database.\n\n")
	b.WriteString("## Details\n\n")
	fmt.Fprintf(&b, "- Created: %s\n", m.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- User: %s\n", m.CreatedBy)
	if m.System.Version != "" {
		fmt.Fprintf(&b, "- Version: %s\n", m.System.Version)
	}

	if err := os.WriteFile(filepath.Join(dir, ReadmeFile), []byte(b.String()), 0644); err != nil {
		return appErrors.NewIOError("failed to write README", err)
	}
	return nil
}

func charsetOrDefault(charset string) string {
	if charset == "" {
		return "utf8mb4"
	}
	return charset
}
