package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Health states reported per component and overall
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// HealthCheckResult summarizes whether the engine can operate with this configuration
type HealthCheckResult struct {
	Timestamp       time.Time         `json:"timestamp"`
	OverallHealth   string            `json:"overall_health"`
	ComponentStatus map[string]string `json:"component_status"`
	Issues          []string          `json:"issues"`
	Recommendations []string          `json:"recommendations"`
	Database        *DatabaseStatus   `json:"database,omitempty"`
}

// DatabaseStatus is what a live connection reported
type DatabaseStatus struct {
	Version string `json:"version"`
	Tables  int    `json:"tables"`
}

func (r *HealthCheckResult) set(component, status, issue string) {
	r.ComponentStatus[component] = status
	if issue != "" {
		r.Issues = append(r.Issues, issue)
	}
	switch {
	case status == HealthUnhealthy:
		r.OverallHealth = HealthUnhealthy
	case status == HealthDegraded && r.OverallHealth == HealthHealthy:
		r.OverallHealth = HealthDegraded
	}
}

func (r *HealthCheckResult) recommend(format string, args ...interface{}) {
	r.Recommendations = append(r.Recommendations, fmt.Sprintf(format, args...))
}

// CheckHealth validates the configuration and probes the local directories.
// With create set, missing backup, temp and log directories are created.
func (c *Config) CheckHealth(create bool) *HealthCheckResult {
	result := &HealthCheckResult{
		Timestamp:       time.Now(),
		OverallHealth:   HealthHealthy,
		ComponentStatus: make(map[string]string),
	}

	if err := c.Validate(); err != nil {
		result.set("configuration", HealthUnhealthy, err.Error())
	} else {
		result.set("configuration", HealthHealthy, "")
	}

	if info, err := os.Stat(c.Paths.AppDir); err != nil || !info.IsDir() {
		result.set("app_dir", HealthUnhealthy, fmt.Sprintf("application directory %s is not accessible", c.Paths.AppDir))
	} else {
		result.set("app_dir", HealthHealthy, "")
	}

	for name, dir := range map[string]string{
		"backup_dir": c.Paths.BackupDir,
		"temp_dir":   c.Paths.TempDir,
		"log_dir":    c.Paths.LogDir,
	} {
		if dir == "" {
			continue
		}
		if err := checkWritableDir(dir, create); err != nil {
			result.set(name, HealthUnhealthy, err.Error())
			continue
		}
		result.set(name, HealthHealthy, "")
	}

	if c.Database.Configured() {
		result.set("database", HealthHealthy, "")
	} else {
		result.set("database", HealthDegraded, "database is not configured; database and complete backups are unavailable")
		result.recommend("Set [database] host, user and name in %s", DefaultConfigName)
	}

	c.checkRemote(result)
	c.checkEncryption(result)

	if c.Retention.KeepLast == 0 && c.Retention.MaxAge == 0 {
		result.recommend("Configure retention.keep_last or retention.max_age to bound disk usage")
	}
	return result
}

// RecordDatabase folds the outcome of a live connection into the result
func (r *HealthCheckResult) RecordDatabase(version string, tables int, err error) {
	if err != nil {
		r.set("database", HealthUnhealthy, fmt.Sprintf("database check failed: %v", err))
		r.recommend("Verify the database server is running and the [database] credentials are correct")
		return
	}
	r.Database = &DatabaseStatus{Version: version, Tables: tables}
	r.set("database", HealthHealthy, "")
}

func (c *Config) checkRemote(result *HealthCheckResult) {
	switch c.Remote.Provider {
	case "":
		result.recommend("Configure a remote provider to keep offsite copies")
	case "local":
		if err := checkWritableDir(c.Remote.Local.BasePath, false); err != nil {
			result.set("remote", HealthDegraded, err.Error())
			return
		}
	case "s3":
		if c.Remote.S3.AccessKey == "" && os.Getenv("AWS_ACCESS_KEY_ID") == "" {
			result.set("remote", HealthDegraded, "S3 credentials are not configured")
			result.recommend("Set AWS credentials: export AWS_ACCESS_KEY_ID=... AWS_SECRET_ACCESS_KEY=...")
			return
		}
	case "azure":
		if c.Remote.Azure.AccountKey == "" {
			result.set("remote", HealthDegraded, "Azure storage account key is not configured")
			return
		}
	case "gcs":
		if c.Remote.GCS.CredentialsPath == "" {
			result.recommend("Set GOOGLE_APPLICATION_CREDENTIALS unless running with workload identity")
		} else if _, err := os.Stat(c.Remote.GCS.CredentialsPath); err != nil {
			result.set("remote", HealthDegraded, fmt.Sprintf("GCS credentials file does not exist: %s", c.Remote.GCS.CredentialsPath))
			return
		}
	}
	if c.Remote.Provider != "" {
		result.set("remote", HealthHealthy, "")
	}
}

func (c *Config) checkEncryption(result *HealthCheckResult) {
	if !c.Encryption.Enabled {
		if c.Remote.Provider != "" && c.Remote.Provider != "local" {
			result.recommend("Consider enabling encryption for offsite copies")
		}
		return
	}

	switch c.Encryption.KeySource {
	case "env":
		if os.Getenv(c.Encryption.KeyEnvVar) == "" {
			result.set("encryption", HealthUnhealthy, fmt.Sprintf("encryption key environment variable %s is not set", c.Encryption.KeyEnvVar))
			return
		}
	case "file":
		if _, err := os.Stat(c.Encryption.KeyPath); err != nil {
			result.set("encryption", HealthUnhealthy, fmt.Sprintf("encryption key file does not exist: %s", c.Encryption.KeyPath))
			return
		}
	}
	result.set("encryption", HealthHealthy, "")
}

func checkWritableDir(dir string, create bool) error {
	if create {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, []byte("test"), 0644); err != nil {
		return fmt.Errorf("insufficient write permissions for %s: %w", dir, err)
	}
	os.Remove(probe)
	return nil
}
