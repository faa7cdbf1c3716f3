package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"
)

// auditEntry records one authenticated mutation for the admin audit trail.
type auditEntry struct {
	Time       time.Time `json:"time"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
}

type auditSink interface {
	Write(entry auditEntry) error
}

// auditLog keeps a bounded in-memory window of entries and optionally
// persists each one through a sink.
type auditLog struct {
	mu      sync.Mutex
	entries []auditEntry
	max     int
	sink    auditSink
}

func newAuditLog(max int, sink auditSink) *auditLog {
	if max <= 0 {
		max = 200
	}
	return &auditLog{max: max, sink: sink}
}

func (l *auditLog) add(entry auditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	if l.sink != nil {
		// Best-effort persistence; a failing sink must not affect requests.
		_ = l.sink.Write(entry)
	}
}

func (l *auditLog) list(limit int) []auditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > l.max {
		limit = l.max
	}
	n := len(l.entries)
	if n > limit {
		n = limit
	}
	out := make([]auditEntry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// auditMutations records authenticated write requests.
func (h *Handler) auditMutations(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := userFrom(r.Context())
		if u == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.audit.add(auditEntry{
			Time:       time.Now().UTC(),
			UserID:     u.ID,
			Username:   u.Username,
			Role:       u.Role,
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     rec.status,
			RemoteAddr: r.RemoteAddr,
		})
	})
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.audit.list(0))
}

// fileAuditSink appends entries as JSONL.
type fileAuditSink struct {
	mu   sync.Mutex
	file *os.File
}

func newFileAuditSink(path string) (*fileAuditSink, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &fileAuditSink{file: f}, nil
}

func (s *fileAuditSink) Write(entry auditEntry) error {
	if s == nil || s.file == nil {
		return nil
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(b, '\n'))
	return err
}
