package session

import (
	"testing"
)

func TestManager_RoundTrip(t *testing.T) {
	workspace := t.TempDir()
	m := NewManager(workspace)

	s := m.GetOrCreate("telegram:42")
	s.SetModel("kling-i2v")
	s.SetParams(map[string]string{"duration": "10"})
	s.SetEnhance(true)
	s.SetLastTask("task-9")
	if err := m.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh manager must read the state back from disk.
	m2 := NewManager(workspace)
	got := m2.GetOrCreate("telegram:42")
	if got.Model != "kling-i2v" || !got.Enhance || got.LastTask != "task-9" {
		t.Fatalf("session state lost: %+v", got)
	}
	if got.Params["duration"] != "10" {
		t.Fatalf("model overrides lost: %+v", got.Params)
	}
}

func TestManager_CacheReturnsSameSession(t *testing.T) {
	m := NewManager(t.TempDir())
	a := m.GetOrCreate("feishu:7")
	b := m.GetOrCreate("feishu:7")
	if a != b {
		t.Fatalf("expected cached session")
	}
}

func TestSession_TakePendingImage(t *testing.T) {
	s := NewSession("telegram:42")
	s.SetPendingImage("https://files.example/photo.jpg")

	if got := s.TakePendingImage(); got != "https://files.example/photo.jpg" {
		t.Fatalf("pending image lost: %q", got)
	}
	if got := s.TakePendingImage(); got != "" {
		t.Fatalf("pending image must clear after use: %q", got)
	}
}

func TestManager_Clear(t *testing.T) {
	workspace := t.TempDir()
	m := NewManager(workspace)

	s := m.GetOrCreate("dingtalk:1")
	s.SetModel("upscale")
	if err := m.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := m.Clear("dingtalk:1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := m.GetOrCreate("dingtalk:1"); got.Model != "" {
		t.Fatalf("cleared session still has state: %+v", got)
	}

	// Clearing a session that never existed is not an error.
	if err := m.Clear("dingtalk:absent"); err != nil {
		t.Fatalf("Clear on missing session: %v", err)
	}
}
