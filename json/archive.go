package json

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/hangar"
)

// Record is an archived invocation: the answer together with the transcript
// that produced it.
type Record struct {
	RequestID  string
	SessionID  string
	Domain     hangar.Domain
	Degraded   bool
	Iterations int
	StartedAt  time.Time
	FinishedAt time.Time
	Messages   []hangar.Message
}

// NewRecord builds a Record from a finished invocation.
func NewRecord(requestID string, q hangar.Question, a hangar.Answer, started, finished time.Time) Record {
	return Record{
		RequestID:  requestID,
		SessionID:  q.SessionID,
		Domain:     a.Domain,
		Degraded:   a.Degraded,
		Iterations: a.Iterations,
		StartedAt:  started,
		FinishedAt: finished,
		Messages:   a.Messages,
	}
}

// envelope is the v1 wire format for an archived invocation.
type envelope struct {
	Version    int          `json:"version"`
	RequestID  string       `json:"request_id"`
	SessionID  string       `json:"session_id,omitempty"`
	Domain     string       `json:"domain"`
	Degraded   bool         `json:"degraded"`
	Iterations int          `json:"iterations"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Messages   []messageDTO `json:"messages"`
}

// MarshalRecord serializes a Record to JSON in v1 envelope format.
func MarshalRecord(r Record) ([]byte, error) {
	msgs, err := marshalMessages(r.Messages)
	if err != nil {
		return nil, err
	}
	env := envelope{
		Version:    1,
		RequestID:  r.RequestID,
		SessionID:  r.SessionID,
		Domain:     string(r.Domain),
		Degraded:   r.Degraded,
		Iterations: r.Iterations,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Messages:   msgs,
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalRecord deserializes a Record from JSON in v1 envelope format.
func UnmarshalRecord(data []byte) (Record, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Record{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != 1 {
		return Record{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	msgs, err := unmarshalMessages(env.Messages)
	if err != nil {
		return Record{}, err
	}
	return Record{
		RequestID:  env.RequestID,
		SessionID:  env.SessionID,
		Domain:     hangar.Domain(env.Domain),
		Degraded:   env.Degraded,
		Iterations: env.Iterations,
		StartedAt:  env.StartedAt,
		FinishedAt: env.FinishedAt,
		Messages:   msgs,
	}, nil
}

// Save writes a Record to a JSON file, creating parent directories as needed.
func Save(path string, r Record) error {
	data, err := MarshalRecord(r)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads a Record from a JSON file.
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalRecord(data)
}

// Archive stores records as one file per request under a directory.
type Archive struct {
	dir string
}

// NewArchive returns an Archive rooted at dir.
func NewArchive(dir string) *Archive {
	return &Archive{dir: dir}
}

// Path returns the file a record with requestID is stored in.
func (a *Archive) Path(requestID string) string {
	return filepath.Join(a.dir, requestID+".json")
}

// Store saves r under its request id.
func (a *Archive) Store(r Record) error {
	if r.RequestID == "" || filepath.Base(r.RequestID) != r.RequestID {
		return fmt.Errorf("invalid request id %q: %w", r.RequestID, hangar.ErrValidation)
	}
	return Save(a.Path(r.RequestID), r)
}
