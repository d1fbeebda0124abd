// Package session tracks per-chat state: the model a chat picked, whether
// prompts go through the enhancer, the last task, and any attached image
// waiting for a command.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Session represents one chat's generation preferences.
type Session struct {
	Key          string                 `json:"key"`
	Model        string                 `json:"model,omitempty"` // catalog card name, "" = deployment default
	Params       map[string]string      `json:"params,omitempty"` // raw key=val overrides from /model
	Enhance      bool                   `json:"enhance"`
	LastTask     string                 `json:"last_task,omitempty"`
	PendingImage string                 `json:"pending_image,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewSession starts empty per-chat state under the given session key.
func NewSession(key string) *Session {
	return &Session{
		Key:       key,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

// SetModel records the chat's model pick.
func (s *Session) SetModel(name string) {
	s.Model = name
	s.UpdatedAt = time.Now()
}

// SetParams replaces the chat's parameter overrides. Switching models with
// no pairs clears them; overrides belong to one model pick.
func (s *Session) SetParams(params map[string]string) {
	if len(params) == 0 {
		params = nil
	}
	s.Params = params
	s.UpdatedAt = time.Now()
}

// SetEnhance toggles prompt enhancement for the chat.
func (s *Session) SetEnhance(on bool) {
	s.Enhance = on
	s.UpdatedAt = time.Now()
}

// SetLastTask records the chat's most recent task so /status works without
// an argument.
func (s *Session) SetLastTask(taskID string) {
	s.LastTask = taskID
	s.UpdatedAt = time.Now()
}

// SetPendingImage stores an attached image until the next command uses it.
func (s *Session) SetPendingImage(source string) {
	s.PendingImage = source
	s.UpdatedAt = time.Now()
}

// TakePendingImage returns the stored image and clears it. An image feeds
// exactly one generation.
func (s *Session) TakePendingImage() string {
	img := s.PendingImage
	s.PendingImage = ""
	if img != "" {
		s.UpdatedAt = time.Now()
	}
	return img
}

// Manager caches sessions in memory and persists each one as a JSON file
// under the workspace sessions directory.
type Manager struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*Session
}

// NewManager opens the session store under workspace/sessions.
func NewManager(workspace string) *Manager {
	dir := filepath.Join(workspace, "sessions")
	os.MkdirAll(dir, 0755)
	return &Manager{
		dir:   dir,
		cache: make(map[string]*Session),
	}
}

// pathFor flattens the session key into a filename. Keys contain ":" and
// can contain separators when chat IDs do.
func (m *Manager) pathFor(key string) string {
	safe := strings.ReplaceAll(key, ":", "_")
	safe = strings.ReplaceAll(safe, string(filepath.Separator), "_")
	return filepath.Join(m.dir, safe+".json")
}

// GetOrCreate returns the chat's session, reading it from disk on first
// access and creating it fresh when none was saved.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.cache[key]; ok {
		return session
	}

	session := m.load(key)
	if session == nil {
		session = NewSession(key)
	}

	m.cache[key] = session
	return session
}

// load reads a saved session file. Unreadable or corrupt files yield nil,
// which resets the chat to defaults rather than wedging it.
func (m *Manager) load(key string) *Session {
	data, err := os.ReadFile(m.pathFor(key))
	if err != nil {
		return nil
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil
	}
	session.Key = key
	if session.Metadata == nil {
		session.Metadata = make(map[string]interface{})
	}
	return &session
}

// Save writes the session file and refreshes the cache entry.
func (m *Manager) Save(session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache[session.Key] = session

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.pathFor(session.Key), data, 0644)
}

// Clear drops a chat's session from cache and disk. Clearing a chat that
// has no session is not an error.
func (m *Manager) Clear(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cache, key)
	err := os.Remove(m.pathFor(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
