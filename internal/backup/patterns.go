package backup

import (
	"path/filepath"
	"strings"

	"suite-backup/internal/pathfilter"
)

// Default project patterns
var (
	DefaultInclude = []string{
		"*.php", "*.css", "*.js", "*.html", "*.ini", "*.md",
		"api/*", "includes/*", "media/*", "configbackup/*",
	}
	DefaultExclude = []string{"temp_backup/*", "backups/*", ".git/*", "*.tmp"}
)

// projectFilter builds the pattern set for a project capture
func projectFilter(includeMedia, includeLogs bool, extraExclude []string) (*pathfilter.Set, error) {
	include := append([]string(nil), DefaultInclude...)
	exclude := append([]string(nil), DefaultExclude...)

	if includeLogs {
		include = append(include, "logs/*")
	} else {
		exclude = append(exclude, "*.log", "logs/*")
	}
	if !includeMedia {
		exclude = append(exclude, "media/*")
	}
	for _, p := range extraExclude {
		if p = strings.TrimSpace(p); p != "" {
			exclude = append(exclude, p)
		}
	}
	return pathfilter.NewSet(include, exclude)
}

// innerDirs returns the directories among dirs that sit inside appDir,
// relative to it. They are never captured nor overwritten.
func innerDirs(appDir string, dirs ...string) []string {
	var out []string
	for _, d := range dirs {
		if d == "" {
			continue
		}
		rel, err := filepath.Rel(appDir, d)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}
