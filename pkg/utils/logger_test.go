package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRotatingFileKeepsBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wavebot.log")
	sink := newRotatingFile(path, 32, 2)

	line := bytes.Repeat([]byte("x"), 20)
	for i := 0; i < 4; i++ {
		if _, err := sink.Write(append(line, '\n')); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := sink.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	// Four 21-byte writes against a 32-byte limit force rotations; the live
	// file plus both numbered backups must exist.
	for _, p := range []string{path, path + ".1", path + ".2"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", filepath.Base(p), err)
		}
	}
	if _, err := os.Stat(path + ".3"); err == nil {
		t.Errorf("backup beyond the configured count: %s.3", filepath.Base(path))
	}

	// The live file holds only the newest write.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read live file: %v", err)
	}
	if len(data) != 21 {
		t.Errorf("live file has %d bytes, want 21", len(data))
	}
}

func TestRotatingFileAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wavebot.log")

	first := newRotatingFile(path, 1024, 2)
	if _, err := first.Write([]byte("one\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	first.Sync()

	// A new sink over the same path must append, not truncate.
	second := newRotatingFile(path, 1024, 2)
	if _, err := second.Write([]byte("two\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	second.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "one\ntwo\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestSetupLoggerCreatesLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := SetupLogger(dir, false)
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	logger.Info("started")
	logger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "wavebot.log"))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !bytes.Contains(data, []byte("started")) {
		t.Fatalf("log line missing from %q", data)
	}
}
