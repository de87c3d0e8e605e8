package mediastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/botmesh/botmesh/internal/telemetry"
)

// FSStore keeps media objects on the local filesystem, one file per
// object under <root>/<tenant>/<mediaID>.
type FSStore struct {
	root string
	log  *slog.Logger
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates the root directory if needed and returns the store.
func NewFSStore(root string, log *slog.Logger) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("mediastore: root directory is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media root: %w", err)
	}

	log.Info("Media store opened", "backend", "fs", "root", root)

	return &FSStore{root: root, log: log}, nil
}

// Backend names the storage backend.
func (s *FSStore) Backend() string { return "fs" }

// Root returns the directory media objects are stored under.
func (s *FSStore) Root() string { return s.root }

func (s *FSStore) path(tenant, mediaID string) string {
	return filepath.Join(s.root, tenant, mediaID)
}

// Write stores one media object. Content lands in a temp file first and
// is renamed into place, so readers never observe partial writes.
func (s *FSStore) Write(ctx context.Context, tenant, mediaID string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validateName("tenant", tenant); err != nil {
		return 0, err
	}
	if err := validateName("media ID", mediaID); err != nil {
		return 0, err
	}

	_, span := telemetry.StartMediaSpan(ctx, "write", mediaID,
		telemetry.TenantID(tenant),
		telemetry.StoreType("fs"),
	)
	defer span.End()

	dir := filepath.Join(s.root, tenant)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create tenant directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to write media content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(tenant, mediaID)); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to publish media content: %w", err)
	}

	span.SetAttributes(telemetry.StorageSize(n))

	return n, nil
}

// Read opens one media object for streaming.
func (s *FSStore) Read(ctx context.Context, tenant, mediaID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName("tenant", tenant); err != nil {
		return nil, err
	}
	if err := validateName("media ID", mediaID); err != nil {
		return nil, err
	}

	_, span := telemetry.StartMediaSpan(ctx, "read", mediaID,
		telemetry.TenantID(tenant),
		telemetry.StoreType("fs"),
	)
	defer span.End()

	f, err := os.Open(s.path(tenant, mediaID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open media content: %w", err)
	}
	return f, nil
}

// Stat describes one media object.
func (s *FSStore) Stat(ctx context.Context, tenant, mediaID string) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName("tenant", tenant); err != nil {
		return nil, err
	}
	if err := validateName("media ID", mediaID); err != nil {
		return nil, err
	}

	fi, err := os.Stat(s.path(tenant, mediaID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat media content: %w", err)
	}

	return &Info{
		Tenant:  tenant,
		MediaID: mediaID,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}, nil
}

// Delete removes one media object. Absent objects are ignored.
func (s *FSStore) Delete(ctx context.Context, tenant, mediaID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateName("tenant", tenant); err != nil {
		return err
	}
	if err := validateName("media ID", mediaID); err != nil {
		return err
	}

	_, span := telemetry.StartMediaSpan(ctx, "delete", mediaID,
		telemetry.TenantID(tenant),
		telemetry.StoreType("fs"),
	)
	defer span.End()

	if err := os.Remove(s.path(tenant, mediaID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete media content: %w", err)
	}
	return nil
}
