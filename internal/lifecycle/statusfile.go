package lifecycle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/sjdv1982/hashserver/internal/herr"
)

// statusFileWait is how long the handshake waits for a supervisor to
// create the status file. A var, not a const, so tests can shrink it
// rather than waiting out the real 20s.
var statusFileWait = 20 * time.Second

// WaitForStatusFile polls for path to appear, for up to statusFileWait,
// and returns its parsed contents. The file must decode to a JSON
// object.
func WaitForStatusFile(path string) (map[string]any, error) {
	deadline := time.Now().Add(statusFileWait)
	for {
		b, err := os.ReadFile(path)
		if err == nil {
			var obj map[string]any
			if decodeErr := json.Unmarshal(b, &obj); decodeErr != nil || obj == nil {
				return nil, herr.New(herr.KindConfigError, "status file is not a JSON object", decodeErr)
			}
			return obj, nil
		}
		if !os.IsNotExist(err) {
			return nil, herr.New(herr.KindConfigError, "unable to read status file", err)
		}
		if time.Now().After(deadline) {
			return nil, herr.New(herr.KindConfigError, "timed out waiting for status file", nil)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// WriteStatusFile atomically rewrites path with obj's fields plus the
// given overrides, via write-temp-then-rename (the ingest pipeline
// publishes buffers from a temp file too, but with a hard link).
func WriteStatusFile(path string, obj map[string]any, overrides map[string]any) error {
	merged := make(map[string]any, len(obj)+len(overrides))
	for k, v := range obj {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	b, err := json.Marshal(merged)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, path)
}

// MarkRunning rewrites the status file (if configured) to record a
// successful bind.
func MarkRunning(statusFile string, obj map[string]any, port int) error {
	if statusFile == "" {
		return nil
	}
	return WriteStatusFile(statusFile, obj, map[string]any{
		"port":   port,
		"status": "running",
	})
}

// MarkFailed rewrites the status file (if configured and not already
// running) to record a startup failure.
func MarkFailed(statusFile string, obj map[string]any) error {
	if statusFile == "" {
		return nil
	}
	if status, _ := obj["status"].(string); status == "running" {
		return nil
	}
	return WriteStatusFile(statusFile, obj, map[string]any{
		"status": "failed",
	})
}
