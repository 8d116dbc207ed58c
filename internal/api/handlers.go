package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"suite-backup/internal/backup"

	"github.com/go-chi/chi/v5"
)

const healthTimeout = 5 * time.Second

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	report := healthReport{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			report.Checks[name] = err.Error()
			report.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		report.Checks[name] = "ok"
	}
	writeJSON(w, status, report)
}

// pathParam returns an unescaped route parameter; validation is left to the engine
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func boolQuery(r *http.Request, name string) (bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func (s *Server) listBackups(w http.ResponseWriter, r *http.Request) {
	archives, err := s.engine.ListBackups(r.Context())
	s.writeOutcome(w, r, archives, err, http.StatusOK)
}

func (s *Server) createBackup(w http.ResponseWriter, r *http.Request) {
	includeMedia, err := boolQuery(r, "include_media")
	if err != nil {
		s.badRequest(w, r, "include_media must be a boolean")
		return
	}
	includeLogs, err := boolQuery(r, "include_logs")
	if err != nil {
		s.badRequest(w, r, "include_logs must be a boolean")
		return
	}

	var created *backup.BackupArchive
	switch backup.ArchiveType(chi.URLParam(r, "kind")) {
	case backup.TypeProject:
		created, err = s.engine.CreateProjectBackup(r.Context(), includeMedia, includeLogs)
	case backup.TypeDatabase:
		created, err = s.engine.CreateDatabaseBackup(r.Context())
	case backup.TypeComplete:
		created, err = s.engine.CreateCompleteBackup(r.Context(), includeMedia, includeLogs)
	default:
		s.badRequest(w, r, "backup kind must be project, database or complete")
		return
	}
	s.writeOutcome(w, r, created, err, http.StatusCreated)
}

func (s *Server) deleteBackup(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "filename")
	err := s.engine.DeleteBackup(r.Context(), name)
	s.writeOutcome(w, r, map[string]string{"filename": name}, err, http.StatusOK)
}

func (s *Server) downloadBackup(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.DownloadBackup(r.Context(), pathParam(r, "filename"))
	if err != nil {
		s.writeOutcome(w, r, nil, err, http.StatusOK)
		return
	}
	defer d.Close()

	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Disposition", d.ContentDisposition)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	http.ServeContent(w, r, d.Filename, d.ModTime, d.Content)
}

func (s *Server) restoreBackup(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.RestoreBackup(r.Context(), pathParam(r, "filename"))
	s.writeOutcome(w, r, result, err, http.StatusOK)
}

func (s *Server) pruneBackups(w http.ResponseWriter, r *http.Request) {
	dryRun, err := boolQuery(r, "dry_run")
	if err != nil {
		s.badRequest(w, r, "dry_run must be a boolean")
		return
	}
	result, err := s.engine.PruneBackups(r.Context(), dryRun)
	s.writeOutcome(w, r, result, err, http.StatusOK)
}

func (s *Server) pushBackup(w http.ResponseWriter, r *http.Request) {
	obj, err := s.engine.PushBackup(r.Context(), pathParam(r, "filename"))
	s.writeOutcome(w, r, obj, err, http.StatusOK)
}

func (s *Server) remoteList(w http.ResponseWriter, r *http.Request) {
	objects, err := s.engine.RemoteList(r.Context())
	s.writeOutcome(w, r, objects, err, http.StatusOK)
}

func (s *Server) fetchBackup(w http.ResponseWriter, r *http.Request) {
	fetched, err := s.engine.FetchBackup(r.Context(), pathParam(r, "name"))
	s.writeOutcome(w, r, fetched, err, http.StatusCreated)
}
