//go:build !windows

package fsutil

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const lockingPlatform = false

func nativeRemoveAll(ctx context.Context, dir string) error {
	out, err := exec.CommandContext(ctx, "rm", "-rf", "--", dir).CombinedOutput()
	if err != nil {
		return fmt.Errorf("rm -rf %s: %w: %s", dir, err, strings.TrimSpace(string(out)))
	}
	return nil
}
