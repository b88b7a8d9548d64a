package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogAdapter is the default telemetry sink: one JSON line per envelope,
// written to a size-rotated file. A file lock guards the log path so two
// runs pointed at the same directory cannot interleave rotations.
type LogAdapter struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
	lock   *flock.Flock
}

// NewLogAdapter creates the adapter, creating dir as needed and acquiring
// the lock file next to the log. maxSizeMB and maxBackups bound rotation.
func NewLogAdapter(dir string, maxSizeMB, maxBackups int) (*LogAdapter, error) {
	if dir == "" {
		dir = "logs/rampline"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create stats log dir: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 5
	}
	if maxBackups <= 0 {
		maxBackups = 15
	}

	lock := flock.New(filepath.Join(dir, "stats.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock stats log: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("stats log dir %s is locked by another run", dir)
	}

	return &LogAdapter{
		writer: &lumberjack.Logger{
			Filename:   filepath.Join(dir, "stats.log"),
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
		},
		lock: lock,
	}, nil
}

// Process writes one envelope as a JSON line.
func (a *LogAdapter) Process(env Envelope) error {
	line, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.writer.Write(line); err != nil {
		return fmt.Errorf("write stats log: %w", err)
	}
	return nil
}

// Close releases the rotated file and the directory lock.
func (a *LogAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	closeErr := a.writer.Close()
	if err := a.lock.Unlock(); err != nil {
		return err
	}
	return closeErr
}
