package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kckern/daylightfit/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrPersistenceDegraded is surfaced to the Session Coordinator when the
// circuit breaker is open or every retry has been exhausted, so the
// session can report PersistenceDegraded status immediately instead of
// blocking on another doomed write attempt (spec.md §7).
var ErrPersistenceDegraded = errors.New("persistence: degraded, writes are currently failing")

// retryDelays is the fixed backoff schedule for a single write's retry
// attempts (spec.md §4.K).
var retryDelays = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 2 * time.Second}

// Store writes and reads SessionDocuments atomically, wrapped in a
// circuit breaker so sustained failures stop retrying every tick.
type Store struct {
	dir     string
	logger  zerolog.Logger
	metrics *metrics.Registry
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// New builds a Store rooted at dir, creating it if necessary.
func New(dir string, logger zerolog.Logger, reg *metrics.Registry) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("persistence: creating %s: %w", dir, err)
	}

	settings := gobreaker.Settings{
		Name:        "session-persistence",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	return &Store{
		dir:     dir,
		logger:  logger.With().Str("component", "persistence").Logger(),
		metrics: reg,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}, nil
}

// Save atomically writes doc to <dir>/<sessionId>.json via a temp file
// plus rename, retrying up to len(retryDelays) times with fixed backoff
// before giving up. The whole attempt (including retries) runs behind the
// circuit breaker: once the breaker is open, Save fails fast with
// ErrPersistenceDegraded rather than spending the retry budget again.
func (s *Store) Save(doc SessionDocument) error {
	doc.Version = CurrentVersion

	_, err := s.breaker.Execute(func() (struct{}, error) {
		var lastErr error
		for attempt := 0; attempt <= len(retryDelays); attempt++ {
			if attempt > 0 {
				s.metrics.PersistenceRetry.Inc()
				time.Sleep(retryDelays[attempt-1])
			}
			if err := s.writeOnce(doc); err != nil {
				lastErr = err
				s.logger.Warn().Err(err).Int("attempt", attempt).Str("sessionId", doc.Session.ID).Msg("session write failed")
				continue
			}
			s.metrics.PersistenceOK.Inc()
			return struct{}{}, nil
		}
		s.metrics.PersistenceFail.Inc()
		return struct{}{}, lastErr
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ErrPersistenceDegraded
		}
		return fmt.Errorf("persistence: saving session %s: %w: %w", doc.Session.ID, ErrPersistenceDegraded, err)
	}
	return nil
}

func (s *Store) writeOnce(doc SessionDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session document: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, doc.Session.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	final := filepath.Join(s.dir, doc.Session.ID+".json")
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// Load reads and normalizes a session document from disk, upgrading
// legacy v1/v2 shapes to v3 (spec.md §6).
func (s *Store) Load(sessionID string) (SessionDocument, error) {
	path := filepath.Join(s.dir, sessionID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return SessionDocument{}, fmt.Errorf("persistence: reading %s: %w", path, err)
	}
	return Normalize(data)
}
