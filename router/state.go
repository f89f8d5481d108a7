// Package router maps user prompts to triads. The pipeline prefers an
// explicit override, then the grace period, then high-confidence
// semantic similarity, then LLM disambiguation, then manual selection,
// and finally cancellation. State is persisted per session and every
// decision is logged as telemetry.
package router

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// SessionState is one session's routing state. The active triad is
// replaced only when a new triad is chosen outside the grace period.
type SessionState struct {
	SessionID                 string     `json:"session_id"`
	ActiveTriad               string     `json:"active_triad,omitempty"`
	ConversationStart         *time.Time `json:"conversation_start,omitempty"`
	TurnCount                 int        `json:"turn_count"`
	LastActivity              *time.Time `json:"last_activity,omitempty"`
	PendingIntents            []string   `json:"pending_intents"`
	TrainingModeConfirmations int        `json:"training_mode_confirmations"`
	Cancelled                 bool       `json:"cancelled,omitempty"`
}

// stateFile is the on-disk shape: sessions keyed by id.
type stateFile struct {
	Sessions map[string]*SessionState `json:"sessions"`
}

// StateStore persists session states in a single JSON file guarded by
// an advisory lock.
type StateStore struct {
	path string
}

// NewStateStore creates a StateStore at path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Get returns the state for a session, or a fresh zero state.
func (s *StateStore) Get(sessionID string) (*SessionState, error) {
	file, err := s.read()
	if err != nil {
		return nil, err
	}
	if st, ok := file.Sessions[sessionID]; ok {
		return st, nil
	}
	return &SessionState{SessionID: sessionID, PendingIntents: []string{}}, nil
}

// Mutate applies a change to one session's state under the lock and
// writes the file back atomically.
func (s *StateStore) Mutate(sessionID string, mutate func(*SessionState)) (*SessionState, error) {
	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock router state: %w", err)
	}
	defer lock.Unlock()

	file, err := s.read()
	if err != nil {
		return nil, err
	}
	st, ok := file.Sessions[sessionID]
	if !ok {
		st = &SessionState{SessionID: sessionID, PendingIntents: []string{}}
		file.Sessions[sessionID] = st
	}
	mutate(st)

	if err := s.write(file); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *StateStore) read() (*stateFile, error) {
	file := &stateFile{Sessions: map[string]*SessionState{}}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return file, nil
		}
		return nil, fmt.Errorf("read router state: %w", err)
	}
	if err := json.Unmarshal(data, file); err != nil {
		// A damaged state file resets routing rather than wedging it.
		return &stateFile{Sessions: map[string]*SessionState{}}, nil
	}
	if file.Sessions == nil {
		file.Sessions = map[string]*SessionState{}
	}
	return file, nil
}

func (s *StateStore) write(file *stateFile) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode router state: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".router-state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write router state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync router state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close router state: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod router state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace router state: %w", err)
	}
	return nil
}
