// Package filestore persists report drafts and curriculum releases as JSON
// files under the application data directory.
package filestore

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	envelopeFormat = 1
	tempPattern    = ".tmp-*"
)

var errInvalidSegment = errors.New("filestore: invalid path segment")

// fileEnvelope wraps every stored document with a checksum so truncated
// or hand-edited files are detected on load.
type fileEnvelope struct {
	Format   int             `json:"format"`
	Kind     string          `json:"kind"`
	SavedAt  time.Time       `json:"saved_at"`
	Checksum string          `json:"checksum"`
	Payload  json.RawMessage `json:"payload"`
}

func checksum(payload []byte) (string, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return "", err
	}
	sum := blake2b.Sum256(compact.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

func encode(kind string, savedAt time.Time, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", kind, err)
	}
	sum, err := checksum(payload)
	if err != nil {
		return nil, fmt.Errorf("checksum %s: %w", kind, err)
	}
	return json.Marshal(fileEnvelope{
		Format:   envelopeFormat,
		Kind:     kind,
		SavedAt:  savedAt,
		Checksum: sum,
		Payload:  payload,
	})
}

// decode verifies the envelope and unmarshals its payload into v. Every
// failure means the file is corrupt.
func decode(kind string, data []byte, v any) error {
	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Format != envelopeFormat {
		return fmt.Errorf("unsupported format %d", env.Format)
	}
	if env.Kind != kind {
		return fmt.Errorf("unexpected kind %q", env.Kind)
	}
	if len(env.Payload) == 0 {
		return errors.New("empty payload")
	}
	sum, err := checksum(env.Payload)
	if err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	if sum != env.Checksum {
		return errors.New("checksum mismatch")
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}

// writeAtomic writes data to a temporary file next to path and renames it
// into place, so readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+tempPattern)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func sanitizeSegment(seg string) (string, error) {
	trimmed := strings.TrimSpace(seg)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", errInvalidSegment)
	}
	if trimmed == "." || strings.Contains(trimmed, "..") || strings.ContainsAny(trimmed, `/\`) {
		return "", fmt.Errorf("%w: %q", errInvalidSegment, seg)
	}
	return trimmed, nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
