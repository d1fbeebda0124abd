// Package history keeps a ledger of every generation a deployment ran:
// who asked, on which model, and what came back. Channels use it for the
// /status command; the gateway serves it on the tasks endpoint.
package history

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// StringList stores a JSON array in a single column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
}

// Record is one tracked generation. The task ID doubles as the primary key;
// a task submitted twice would be the same generation.
type Record struct {
	ID        string     `gorm:"primaryKey" json:"id"`
	Channel   string     `gorm:"size:20;index" json:"channel"`
	ChatID    string     `gorm:"index" json:"chat_id"`
	SenderID  string     `gorm:"index" json:"sender_id"`
	Model     string     `gorm:"size:100" json:"model"`
	Prompt    string     `gorm:"type:text" json:"prompt"`
	Status    string     `gorm:"size:20;index" json:"status"`
	Outputs   StringList `gorm:"type:json" json:"outputs"`
	Error     string     `gorm:"type:text" json:"error"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Store wraps the ledger database.
type Store struct {
	db *gorm.DB
}

// Open opens the ledger at path, creating the file and schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history dir: %v", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %v", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history db: %v", err)
	}

	return &Store{db: db}, nil
}

// RecordSubmission inserts the ledger row for a just-submitted task.
func (s *Store) RecordSubmission(rec *Record) error {
	return s.db.Create(rec).Error
}

// MarkCompleted stores the outputs of a finished task.
func (s *Store) MarkCompleted(taskID string, outputs []string) error {
	return s.db.Model(&Record{}).Where("id = ?", taskID).Updates(map[string]interface{}{
		"status":  "completed",
		"outputs": StringList(outputs),
	}).Error
}

// MarkFailed stores the failure reason of a task.
func (s *Store) MarkFailed(taskID, reason string) error {
	return s.db.Model(&Record{}).Where("id = ?", taskID).Updates(map[string]interface{}{
		"status": "failed",
		"error":  reason,
	}).Error
}

// UpdateStatus stores a new in-progress status without touching outputs.
func (s *Store) UpdateStatus(taskID, status string) error {
	return s.db.Model(&Record{}).Where("id = ?", taskID).Update("status", status).Error
}

// Get returns one record by task ID.
func (s *Store) Get(taskID string) (*Record, error) {
	var rec Record
	if err := s.db.First(&rec, "id = ?", taskID).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// Recent returns the newest records for a chat, newest first. An empty
// chat key returns records across all chats.
func (s *Store) Recent(channel, chatID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	q := s.db.Order("created_at DESC").Limit(limit)
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	if chatID != "" {
		q = q.Where("chat_id = ?", chatID)
	}

	var recs []Record
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// LastForChat returns the most recent record for a chat, if any.
func (s *Store) LastForChat(channel, chatID string) (*Record, bool) {
	recs, err := s.Recent(channel, chatID, 1)
	if err != nil || len(recs) == 0 {
		return nil, false
	}
	return &recs[0], true
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
