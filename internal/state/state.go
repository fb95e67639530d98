package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	captureLayout  = "2006-01-02 15:04:05"
	sentDateLayout = "2006-01-02"
	sentTimeLayout = "15:04"
)

// State is the durable watermark record: the single source of truth for
// what has already happened. Zero values mean "never".
type State struct {
	LastCaptureTime time.Time
	LastSentDate    time.Time // midnight of the sent date, reporting tz
	LastSentTime    time.Time // full timestamp of the last committed send
}

// stateFile is the on-disk shape of state.json.
type stateFile struct {
	LastCaptureTime string `json:"last_capture_time,omitempty"`
	LastSentDate    string `json:"last_sent_date,omitempty"`
	LastSentTime    string `json:"last_sent_time,omitempty"`
}

// Store loads state once at startup, keeps the current value in memory, and
// flushes to disk after every committed mutation. Writes go through a temp
// file and rename so a crash never leaves a torn state file.
type Store struct {
	path string
	loc  *time.Location

	mu  sync.Mutex
	cur State
}

func NewStore(path string, loc *time.Location) *Store {
	return &Store{path: path, loc: loc}
}

// Load reads state.json into memory. A missing file yields the zero state;
// a corrupt file is an error rather than a silent reset.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.cur = State{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse state file %s: %w", s.path, err)
	}

	var st State
	if f.LastCaptureTime != "" {
		st.LastCaptureTime, err = time.ParseInLocation(captureLayout, f.LastCaptureTime, s.loc)
		if err != nil {
			return fmt.Errorf("parse last_capture_time: %w", err)
		}
	}
	if f.LastSentDate != "" {
		st.LastSentDate, err = time.ParseInLocation(sentDateLayout, f.LastSentDate, s.loc)
		if err != nil {
			return fmt.Errorf("parse last_sent_date: %w", err)
		}
	}
	// last_sent_time is meaningless without the date it belongs to; a
	// hand-edited file carrying only the instant is ignored.
	if f.LastSentTime != "" && !st.LastSentDate.IsZero() {
		tod, err := time.ParseInLocation(sentTimeLayout, f.LastSentTime, s.loc)
		if err != nil {
			return fmt.Errorf("parse last_sent_time: %w", err)
		}
		d := st.LastSentDate
		st.LastSentTime = time.Date(d.Year(), d.Month(), d.Day(), tod.Hour(), tod.Minute(), 0, 0, s.loc)
	}

	s.cur = st
	return nil
}

// Snapshot returns the current in-memory state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// CommitCapture advances the capture watermark to t and flushes. The
// watermark never regresses.
func (s *Store) CommitCapture(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Before(s.cur.LastCaptureTime) {
		return nil
	}
	next := s.cur
	next.LastCaptureTime = t.In(s.loc)
	if err := s.flush(next); err != nil {
		return err
	}
	s.cur = next
	return nil
}

// CommitSend records a successful dispatch at t and flushes.
func (s *Store) CommitSend(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t = t.In(s.loc)
	next := s.cur
	next.LastSentDate = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
	next.LastSentTime = t
	if next.LastSentDate.Before(s.cur.LastSentDate) {
		return nil
	}
	if err := s.flush(next); err != nil {
		return err
	}
	s.cur = next
	return nil
}

// Reconcile repairs the capture watermark from the day-bucket's newest
// record when the two disagree, trusting whichever is newer. Called once at
// startup before the first tick.
func (s *Store) Reconcile(bucketLatest time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !bucketLatest.After(s.cur.LastCaptureTime) {
		return nil
	}
	next := s.cur
	next.LastCaptureTime = bucketLatest.In(s.loc)
	if err := s.flush(next); err != nil {
		return err
	}
	s.cur = next
	return nil
}

func (s *Store) flush(st State) error {
	f := stateFile{}
	if !st.LastCaptureTime.IsZero() {
		f.LastCaptureTime = st.LastCaptureTime.In(s.loc).Format(captureLayout)
	}
	if !st.LastSentDate.IsZero() {
		f.LastSentDate = st.LastSentDate.In(s.loc).Format(sentDateLayout)
	}
	if !st.LastSentTime.IsZero() {
		f.LastSentTime = st.LastSentTime.In(s.loc).Format(sentTimeLayout)
	}

	data, err := json.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
