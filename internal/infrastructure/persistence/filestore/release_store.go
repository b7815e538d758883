package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/roboxon/student-app/internal/domain/curriculum"
	"github.com/roboxon/student-app/internal/domain/shared"
	"github.com/roboxon/student-app/pkg/logger"
	"github.com/roboxon/student-app/pkg/timeutil"
)

const (
	releasesDir = "releases"
	releaseKind = "release_envelope"
)

// ReleaseStore caches release envelopes as <dataDir>/releases/<id>.json.
type ReleaseStore struct {
	root   string
	logger *logger.Logger
	clock  timeutil.Clock
}

// NewReleaseStore creates the releases directory under dataDir.
func NewReleaseStore(dataDir string, opts ...Option) (*ReleaseStore, error) {
	root := filepath.Join(dataDir, releasesDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create releases dir: %w", err)
	}
	o := applyOptions(opts)
	return &ReleaseStore{
		root:   root,
		logger: o.logger.With(logger.Component("release_store")),
		clock:  o.clock,
	}, nil
}

func (s *ReleaseStore) path(releaseID int64) string {
	return filepath.Join(s.root, strconv.FormatInt(releaseID, 10)+fileExt)
}

// Load returns the cached envelope for releaseID.
func (s *ReleaseStore) Load(ctx context.Context, releaseID int64) (*curriculum.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(releaseID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, shared.ErrReleaseNotFound
		}
		return nil, shared.WrapError("curriculum", "Load", shared.ErrCorruptCache, "unreadable release file", err)
	}

	var env curriculum.Envelope
	if err := decode(releaseKind, data, &env); err != nil {
		s.logger.Warn("corrupt release file", logger.ReleaseID(releaseID), logger.Err(err))
		return nil, shared.WrapError("curriculum", "Load", shared.ErrCorruptCache, "corrupt release file", err)
	}
	return &env, nil
}

// Save overwrites the cached envelope for releaseID.
func (s *ReleaseStore) Save(ctx context.Context, releaseID int64, env *curriculum.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if env == nil {
		return shared.NewDomainError("curriculum", "Save", shared.ErrValidation, "envelope is nil")
	}
	data, err := encode(releaseKind, timeutil.Stamp(s.clock), env)
	if err != nil {
		return fmt.Errorf("encode release %d: %w", releaseID, err)
	}
	if err := writeAtomic(s.path(releaseID), data); err != nil {
		return fmt.Errorf("write release %d: %w", releaseID, err)
	}
	return nil
}
