// Package mediastore is the built-in attachment-storage utility: media
// blobs (photos, voice notes, documents) keyed by tenant and media ID.
// The filesystem backend is the zero-config default; the S3 backend
// targets any S3-compatible endpoint for multi-node deployments.
package mediastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/botmesh/botmesh/pkg/plugin"
)

// Name is the plugin name declared in descriptors.
const Name = "mediastore"

// ErrNotFound reports a media object that does not exist.
var ErrNotFound = errors.New("mediastore: not found")

// Store is the capability surface other plugins receive when they
// declare the mediastore dependency.
type Store interface {
	// Write stores one media object, replacing any previous content.
	Write(ctx context.Context, tenant, mediaID string, r io.Reader) (int64, error)

	// Read opens one media object for streaming. The caller closes it.
	Read(ctx context.Context, tenant, mediaID string) (io.ReadCloser, error)

	// Stat describes one media object without opening it.
	Stat(ctx context.Context, tenant, mediaID string) (*Info, error)

	// Delete removes one media object. Deleting an absent object is not
	// an error.
	Delete(ctx context.Context, tenant, mediaID string) error

	// Backend names the storage backend ("fs" or "s3").
	Backend() string
}

// Info describes one stored media object.
type Info struct {
	Tenant  string    `json:"tenant"`
	MediaID string    `json:"media_id"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Factory builds the media store from its plugin settings. The `backend`
// setting selects the implementation; the filesystem backend defaults
// its root to `<state_dir>/media`.
func Factory(ctx context.Context, deps *plugin.Dependencies) (any, error) {
	backend := deps.StringSetting("backend", "fs")

	switch backend {
	case "fs":
		root := deps.StringSetting("root", "")
		if root == "" {
			stateDir := deps.StringSetting("state_dir", "")
			if stateDir == "" {
				return nil, fmt.Errorf("mediastore: neither root nor state_dir setting is present")
			}
			root = filepath.Join(stateDir, "media")
		}
		return NewFSStore(root, deps.Logger())

	case "s3":
		cfg := S3Config{
			Bucket:          deps.StringSetting("bucket", ""),
			Region:          deps.StringSetting("region", ""),
			Endpoint:        deps.StringSetting("endpoint", ""),
			AccessKeyID:     deps.StringSetting("access_key_id", ""),
			SecretAccessKey: deps.StringSetting("secret_access_key", ""),
			ForcePathStyle:  deps.BoolSetting("force_path_style", false),
			KeyPrefix:       deps.StringSetting("key_prefix", ""),
		}
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Store(ctx, client, cfg, deps.Logger())

	default:
		return nil, fmt.Errorf("mediastore: unsupported backend %q", backend)
	}
}

// validateName rejects identifiers that would escape the per-tenant
// namespace on either backend.
func validateName(field, value string) error {
	if value == "" {
		return fmt.Errorf("mediastore: %s must not be empty", field)
	}
	if value == "." || value == ".." {
		return fmt.Errorf("mediastore: %s must not be a relative path element", field)
	}
	if strings.ContainsAny(value, `/\`) {
		return fmt.Errorf("mediastore: %s must not contain path separators", field)
	}
	return nil
}
