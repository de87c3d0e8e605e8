// Package statestore is the built-in conversation-state utility: a
// badger-backed key-value store holding per-chat session state and
// per-source liveness records. Other plugins reach it by declaring the
// `statestore` dependency.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/botmesh/botmesh/internal/telemetry"
	"github.com/botmesh/botmesh/pkg/plugin"
)

// Name is the plugin name declared in descriptors.
const Name = "statestore"

// Key namespace:
//
//	Data Type     Prefix      Key Format               Value Type
//	==========================================================
//	Session       "session:"  session:<tenant>:<chat>  Session (JSON)
//	Liveness      "live:"     live:<source>            Liveness (JSON)
const (
	prefixSession  = "session:"
	prefixLiveness = "live:"
)

// ErrNotFound reports a key with no stored value.
var ErrNotFound = errors.New("statestore: not found")

// Session is one conversation's persisted state.
type Session struct {
	Tenant    string         `json:"tenant"`
	Chat      string         `json:"chat"`
	State     map[string]any `json:"state"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Liveness is the most recent heartbeat from one event source.
type Liveness struct {
	Source  string    `json:"source"`
	EventID string    `json:"event_id"`
	At      time.Time `json:"at"`
}

// Store is the badger-backed state store.
type Store struct {
	db  *badger.DB
	dir string
	log *slog.Logger
}

// Factory builds the store from its plugin settings. The database lives
// under `dir` when set, otherwise under `<state_dir>/statestore`.
func Factory(ctx context.Context, deps *plugin.Dependencies) (any, error) {
	dir := deps.StringSetting("dir", "")
	if dir == "" {
		stateDir := deps.StringSetting("state_dir", "")
		if stateDir == "" {
			return nil, fmt.Errorf("statestore: neither dir nor state_dir setting is present")
		}
		dir = filepath.Join(stateDir, "statestore")
	}
	return Open(dir, deps.Logger())
}

// Open opens (creating if needed) the badger database at dir.
func Open(dir string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create statestore directory: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	// Badger's own logger is chatty at INFO; the store does its own logging.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open statestore database: %w", err)
	}

	log.Info("State store opened", "dir", dir)
	return &Store{db: db, dir: dir, log: log}, nil
}

// Dir returns the database directory.
func (s *Store) Dir() string {
	return s.dir
}

// PutSession stores or replaces one conversation's state.
func (s *Store) PutSession(ctx context.Context, tenant, chat string, state map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKeyPart("tenant", tenant); err != nil {
		return err
	}
	if err := validateKeyPart("chat", chat); err != nil {
		return err
	}

	_, span := telemetry.StartStateSpan(ctx, "put",
		telemetry.TenantID(tenant), telemetry.ChatID(chat))
	defer span.End()

	session := &Session{
		Tenant:    tenant,
		Chat:      chat,
		State:     state,
		UpdatedAt: time.Now().UTC(),
	}
	data, err := encodeSession(session)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(keySession(tenant, chat), data); err != nil {
			return fmt.Errorf("failed to store session: %w", err)
		}
		return nil
	})
}

// GetSession returns one conversation's state, ErrNotFound when absent.
func (s *Store) GetSession(ctx context.Context, tenant, chat string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, span := telemetry.StartStateSpan(ctx, "get",
		telemetry.TenantID(tenant), telemetry.ChatID(chat))
	defer span.End()

	var session *Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keySession(tenant, chat))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decErr error
			session, decErr = decodeSession(val)
			return decErr
		})
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession removes one conversation's state. Deleting an absent
// session is not an error.
func (s *Store) DeleteSession(ctx context.Context, tenant, chat string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, span := telemetry.StartStateSpan(ctx, "delete",
		telemetry.TenantID(tenant), telemetry.ChatID(chat))
	defer span.End()

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keySession(tenant, chat))
	})
}

// ListSessions returns every stored session for one tenant.
func (s *Store) ListSessions(ctx context.Context, tenant string) ([]*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, span := telemetry.StartStateSpan(ctx, "list", telemetry.TenantID(tenant))
	defer span.End()

	var sessions []*Session
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := keySessionPrefix(tenant)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				session, err := decodeSession(val)
				if err != nil {
					return err
				}
				sessions = append(sessions, session)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// PutLiveness records the most recent event seen from one source. A zero
// timestamp is filled with the current time.
func (s *Store) PutLiveness(ctx context.Context, rec Liveness) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKeyPart("source", rec.Source); err != nil {
		return err
	}

	_, span := telemetry.StartStateSpan(ctx, "put_liveness",
		telemetry.StateSource(rec.Source))
	defer span.End()

	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	data, err := encodeLiveness(&rec)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(keyLiveness(rec.Source), data); err != nil {
			return fmt.Errorf("failed to store liveness record: %w", err)
		}
		return nil
	})
}

// GetLiveness returns the last heartbeat from one source, ErrNotFound
// when the source has never reported.
func (s *Store) GetLiveness(ctx context.Context, source string) (*Liveness, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, span := telemetry.StartStateSpan(ctx, "get_liveness",
		telemetry.StateSource(source))
	defer span.End()

	var rec *Liveness
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyLiveness(source))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decErr error
			rec, decErr = decodeLiveness(val)
			return decErr
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Shutdown closes the database. Part of the plugin teardown contract.
func (s *Store) Shutdown(ctx context.Context) error {
	s.log.Info("Closing state store", "dir", s.dir)
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close statestore database: %w", err)
	}
	return nil
}

// validateKeyPart rejects values that would break the key namespace.
func validateKeyPart(field, value string) error {
	if value == "" {
		return fmt.Errorf("statestore: %s must not be empty", field)
	}
	if strings.Contains(value, ":") {
		return fmt.Errorf("statestore: %s must not contain %q", field, ":")
	}
	return nil
}

func keySession(tenant, chat string) []byte {
	return []byte(prefixSession + tenant + ":" + chat)
}

func keySessionPrefix(tenant string) []byte {
	return []byte(prefixSession + tenant + ":")
}

func keyLiveness(source string) []byte {
	return []byte(prefixLiveness + source)
}
