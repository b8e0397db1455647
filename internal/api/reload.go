package api

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"

	"github.com/banshee-data/canbridge/internal/httputil"
)

// ReloadResult is returned to API clients when a reload request is
// processed.
type ReloadResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Messages int    `json:"messages"`
	Signals  int    `json:"signals"`
}

// reloadHandler re-reads the mapping config (and DBC, when configured)
// into the live table. Load merges: existing entries are overwritten
// by identifier, entries removed from the file stay registered until
// the daemon restarts. A failed load leaves the entries applied before
// the bad one in place.
func (s *Server) reloadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.mappingPath == "" && s.dbcPath == "" {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no mapping file configured")
		return
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	var sources []string
	if s.mappingPath != "" {
		if err := s.table.LoadFile(s.mappingPath); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("reload %s: %v", s.mappingPath, err))
			return
		}
		sources = append(sources, filepath.Base(s.mappingPath))
	}
	if s.dbcPath != "" {
		if err := s.table.LoadDBC(s.dbcPath); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("reload %s: %v", s.dbcPath, err))
			return
		}
		sources = append(sources, filepath.Base(s.dbcPath))
	}

	messages := s.table.Messages()
	signals := 0
	for _, def := range messages {
		signals += len(def.Signals)
	}

	result := ReloadResult{
		Success:  true,
		Message:  fmt.Sprintf("reloaded %v: %d messages, %d signals", sources, len(messages), signals),
		Messages: len(messages),
		Signals:  signals,
	}
	log.Printf("api: %s", result.Message)
	httputil.WriteJSONOK(w, result)
}
