package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log file rotation: cap each file at 10MB and keep 5 numbered backups.
const (
	logFileLimit   = 10 * 1024 * 1024
	logFileBackups = 5
)

// rotatingFile is the file sink behind the zap logger. It tracks the written
// size in memory and rotates to numbered backups when a write would cross
// the limit.
type rotatingFile struct {
	path    string
	limit   int64
	backups int

	mu   sync.Mutex
	file *os.File
	size int64
}

func newRotatingFile(path string, limit int64, backups int) *rotatingFile {
	return &rotatingFile{path: path, limit: limit, backups: backups}
}

// openLocked opens or creates the log file and seeds the size counter from
// what is already on disk.
func (r *rotatingFile) openLocked() error {
	file, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	r.file = file
	r.size = 0
	if info, err := file.Stat(); err == nil {
		r.size = info.Size()
	}
	return nil
}

// rotateLocked shifts wavebot.log.N to wavebot.log.N+1, moves the live file
// to .1, and reopens a fresh one. The oldest backup falls off the end.
func (r *rotatingFile) rotateLocked() error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	for i := r.backups - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", r.path, i), fmt.Sprintf("%s.%d", r.path, i+1))
	}
	if r.backups > 0 {
		os.Rename(r.path, r.path+".1")
	}
	return r.openLocked()
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.openLocked(); err != nil {
			// Losing log lines is worse than mixing them into stderr.
			return os.Stderr.Write(p)
		}
	}

	if r.size+int64(len(p)) > r.limit {
		if err := r.rotateLocked(); err != nil {
			return 0, err
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// Sync flushes the current log file.
func (r *rotatingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return r.file.Sync()
	}
	return nil
}

// SetupLogger builds the process logger: structured JSON lines into a
// size-rotated file plus console output on stderr. The returned logger is
// also installed as the zap global.
func SetupLogger(logDir string, debug bool) (*zap.Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %v", err)
	}
	sink := newRotatingFile(filepath.Join(logDir, "wavebot.log"), logFileLimit, logFileBackups)

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	fileCfg := zap.NewProductionEncoderConfig()
	fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(sink), level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level),
	)

	logger := zap.New(core)
	zap.ReplaceGlobals(logger)
	return logger, nil
}
