//go:build windows

package fsutil

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

const lockingPlatform = true

func nativeRemoveAll(ctx context.Context, dir string) error {
	// attrib failures are not fatal; rmdir reports what is left
	_ = exec.CommandContext(ctx, "cmd", "/C", "attrib", "-r", filepath.Join(dir, "*.*"), "/s", "/d").Run()

	out, err := exec.CommandContext(ctx, "cmd", "/C", "rmdir", "/s", "/q", dir).CombinedOutput()
	if err != nil {
		return fmt.Errorf("rmdir /s /q %s: %w: %s", dir, err, strings.TrimSpace(string(out)))
	}
	return nil
}
