package backup

import (
	"fmt"

	appErrors "suite-backup/internal/errors"
)

// Outcome statuses
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// Outcome is the structured result every surface renders
type Outcome struct {
	Status    string      `json:"status" yaml:"status"`
	Message   string      `json:"message" yaml:"message"`
	ErrorType string      `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	Fields    interface{} `json:"data,omitempty" yaml:"data,omitempty"`
}

// NewOutcome folds an operation's result and error into an Outcome. A
// PartialFailure keeps the result; any other error drops it unless it is a
// RestoreResult, whose safety backup names the operator needs.
func NewOutcome(result interface{}, err error) Outcome {
	if err == nil {
		return Outcome{Status: StatusSuccess, Message: successMessage(result), Fields: result}
	}

	o := Outcome{
		Status:    StatusError,
		Message:   appErrors.FormatUserError(err),
		ErrorType: string(appErrors.GetErrorType(err)),
	}
	if appErrors.IsPartialFailure(err) {
		o.Status = StatusPartial
		o.Fields = result
		return o
	}
	if r, ok := result.(*RestoreResult); ok && r != nil && (r.FilesSafetyBackup != "" || r.DatabaseSafetyBackup != "") {
		o.Fields = r
	}
	return o
}

// IsSuccess reports whether the operation completed without errors
func (o Outcome) IsSuccess() bool {
	return o.Status == StatusSuccess
}

func successMessage(result interface{}) string {
	switch r := result.(type) {
	case *BackupArchive:
		return fmt.Sprintf("Backup %s created (%s)", r.Filename, FormatSize(r.Size))
	case *RestoreResult:
		return fmt.Sprintf("Backup %s restored", r.Filename)
	case []BackupArchive:
		return fmt.Sprintf("%d backups", len(r))
	case *PruneResult:
		if r.DryRun {
			return fmt.Sprintf("%d backups would be deleted", len(r.Deleted))
		}
		return fmt.Sprintf("%d backups deleted, %s freed", len(r.Deleted), FormatSize(r.Freed))
	case *RemoteObject:
		return fmt.Sprintf("Offsite copy %s uploaded", r.Name)
	case []RemoteObject:
		return fmt.Sprintf("%d offsite copies", len(r))
	case map[string]string:
		if name, ok := r["filename"]; ok {
			return fmt.Sprintf("Backup %s deleted", name)
		}
	case nil:
		return "Done"
	}
	return "Done"
}

// FormatSize renders a byte count for people
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
