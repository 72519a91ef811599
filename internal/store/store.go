package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const (
	queueFile         = "queue.json"
	downloadsFile     = "downloads.json"
	conversationsFile = "conversations.json"
	settingsFile      = "settings.json"
)

// Store keeps all durable state as JSON documents under one data
// directory. Every write goes through a single mutex so concurrent
// read-modify-write updates never interleave, and lands via a
// write-to-temp-then-rename so a crash never leaves a half-written
// file.
type Store struct {
	mu  sync.Mutex
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) LoadQueue() ([]QueueItem, error) {
	var items []QueueItem
	if err := s.readJSON(queueFile, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SaveQueue replaces the persisted queue snapshot with the full item
// list.
func (s *Store) SaveQueue(items []QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(queueFile, items)
}

func (s *Store) AppendDownload(rec DownloadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []DownloadRecord
	if err := s.readJSON(downloadsFile, &recs); err != nil {
		return err
	}
	recs = append(recs, rec)
	return s.writeJSON(downloadsFile, recs)
}

func (s *Store) Downloads() ([]DownloadRecord, error) {
	var recs []DownloadRecord
	if err := s.readJSON(downloadsFile, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) AppendConversation(entry ConversationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []ConversationEntry
	if err := s.readJSON(conversationsFile, &entries); err != nil {
		return err
	}
	entries = append(entries, entry)
	return s.writeJSON(conversationsFile, entries)
}

func (s *Store) Conversations() ([]ConversationEntry, error) {
	var entries []ConversationEntry
	if err := s.readJSON(conversationsFile, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) UpsertSettings(chatID int64, format string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := make(map[string]UserSettings)
	if err := s.readJSON(settingsFile, &settings); err != nil {
		return err
	}

	key := strconv.FormatInt(chatID, 10)
	now := time.Now()
	if existing, ok := settings[key]; ok {
		existing.Format = format
		existing.UpdatedAt = now
		settings[key] = existing
	} else {
		settings[key] = UserSettings{
			ChatID:    chatID,
			Format:    format,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return s.writeJSON(settingsFile, settings)
}

func (s *Store) Settings(chatID int64) (UserSettings, bool, error) {
	settings := make(map[string]UserSettings)
	if err := s.readJSON(settingsFile, &settings); err != nil {
		return UserSettings{}, false, err
	}
	us, ok := settings[strconv.FormatInt(chatID, 10)]
	return us, ok, nil
}

func (s *Store) readJSON(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

func (s *Store) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	target := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}
