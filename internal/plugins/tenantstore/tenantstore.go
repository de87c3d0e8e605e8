// Package tenantstore is the built-in tenant-and-bot registry utility.
// It runs on SQLite by default (zero-config, file under the state
// directory) and on PostgreSQL when pointed at one; both backends share
// the same GORM codebase. Postgres schemas are versioned with embedded
// migrations; SQLite uses GORM auto-migration.
package tenantstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/botmesh/botmesh/pkg/plugin"
)

// Name is the plugin name declared in descriptors.
const Name = "tenantstore"

// DatabaseType defines the supported database backends.
type DatabaseType string

const (
	// DatabaseTypeSQLite uses SQLite (single-node, default).
	DatabaseTypeSQLite DatabaseType = "sqlite"

	// DatabaseTypePostgres uses PostgreSQL (multi-instance capable).
	DatabaseTypePostgres DatabaseType = "postgres"
)

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the path to the SQLite database file.
	Path string
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	SSLMode      string // disable, require, verify-ca, verify-full
	MaxOpenConns int
	MaxIdleConns int
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)

	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}

	return dsn
}

// Config contains database configuration for the tenant store.
type Config struct {
	Type     DatabaseType
	SQLite   SQLiteConfig
	Postgres PostgresConfig
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}

	if c.Type == DatabaseTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 25
		}
		if c.Postgres.MaxIdleConns == 0 {
			c.Postgres.MaxIdleConns = 5
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DatabaseTypePostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("postgres database is required")
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("postgres user is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// Store implements the tenant registry over GORM. It supports both
// SQLite and PostgreSQL backends via the same codebase.
type Store struct {
	db     *gorm.DB
	config *Config
	log    *slog.Logger
}

// Factory builds the store from its plugin settings. Without an explicit
// `driver` the registry runs on SQLite at `<state_dir>/tenants.db`.
func Factory(ctx context.Context, deps *plugin.Dependencies) (any, error) {
	cfg := &Config{
		Type: DatabaseType(deps.StringSetting("driver", string(DatabaseTypeSQLite))),
		SQLite: SQLiteConfig{
			Path: deps.StringSetting("path", ""),
		},
		Postgres: PostgresConfig{
			Host:         deps.StringSetting("host", ""),
			Port:         deps.IntSetting("port", 0),
			Database:     deps.StringSetting("database", ""),
			User:         deps.StringSetting("user", ""),
			Password:     deps.StringSetting("password", ""),
			SSLMode:      deps.StringSetting("ssl_mode", ""),
			MaxOpenConns: deps.IntSetting("max_open_conns", 0),
			MaxIdleConns: deps.IntSetting("max_idle_conns", 0),
		},
	}

	if cfg.Type == DatabaseTypeSQLite && cfg.SQLite.Path == "" {
		stateDir := deps.StringSetting("state_dir", "")
		if stateDir == "" {
			return nil, fmt.Errorf("tenantstore: neither path nor state_dir setting is present")
		}
		cfg.SQLite.Path = filepath.Join(stateDir, "tenants.db")
	}

	return New(ctx, cfg, deps.Logger())
}

// New creates a tenant store from the configuration and prepares its
// schema: embedded migrations on Postgres, auto-migration on SQLite.
func New(ctx context.Context, config *Config, log *slog.Logger) (*Store, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tenantstore configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// WAL for concurrent readers, busy_timeout to ride out the single
		// writer.
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case DatabaseTypePostgres:
		// Schema first: golang-migrate takes a Postgres advisory lock, so
		// concurrent instances serialize here.
		if err := runMigrations(ctx, config.Postgres.DSN(), log); err != nil {
			return nil, fmt.Errorf("failed to migrate tenantstore schema: %w", err)
		}
		dialector = postgres.Open(config.Postgres.DSN())

	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.Type == DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	if config.Type == DatabaseTypeSQLite {
		if err := db.AutoMigrate(allModels()...); err != nil {
			return nil, fmt.Errorf("failed to run database migration: %w", err)
		}
	}

	log.Info("Tenant store opened", "driver", string(config.Type))
	return &Store{db: db, config: config, log: log}, nil
}

// DB returns the underlying GORM database connection, for advanced
// queries and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Shutdown closes the database connection. Part of the plugin teardown
// contract.
func (s *Store) Shutdown(ctx context.Context) error {
	s.log.Info("Closing tenant store")
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

// ============================================
// TENANT OPERATIONS
// ============================================

// CreateTenant registers a tenant, generating an ID when absent.
func (s *Store) CreateTenant(ctx context.Context, tenant *Tenant) (string, error) {
	if tenant.Name == "" {
		return "", fmt.Errorf("tenant name is required")
	}
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	now := time.Now()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(tenant).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", ErrDuplicateTenant
		}
		return "", err
	}
	return tenant.ID, nil
}

// GetTenant returns one tenant by ID.
func (s *Store) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var tenant Tenant
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error
	if err != nil {
		return nil, convertNotFoundError(err, ErrTenantNotFound)
	}
	return &tenant, nil
}

// GetTenantByName returns one tenant by its unique name.
func (s *Store) GetTenantByName(ctx context.Context, name string) (*Tenant, error) {
	var tenant Tenant
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&tenant).Error
	if err != nil {
		return nil, convertNotFoundError(err, ErrTenantNotFound)
	}
	return &tenant, nil
}

// ListTenants returns all tenants ordered by name.
func (s *Store) ListTenants(ctx context.Context) ([]*Tenant, error) {
	var tenants []*Tenant
	if err := s.db.WithContext(ctx).Order("name").Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

// UpdateTenant changes a tenant's plan and active flag.
func (s *Store) UpdateTenant(ctx context.Context, tenant *Tenant) error {
	tenant.UpdatedAt = time.Now()

	result := s.db.WithContext(ctx).
		Model(&Tenant{}).
		Where("id = ?", tenant.ID).
		Updates(map[string]any{
			"plan":       tenant.Plan,
			"active":     tenant.Active,
			"updated_at": tenant.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// DeleteTenant removes a tenant and every bot under it, atomically.
func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", id).Delete(&Bot{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&Tenant{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrTenantNotFound
		}
		return nil
	})
}

// ============================================
// BOT OPERATIONS
// ============================================

// CreateBot registers a bot under an existing tenant.
func (s *Store) CreateBot(ctx context.Context, bot *Bot) (string, error) {
	if bot.Name == "" {
		return "", fmt.Errorf("bot name is required")
	}
	if bot.Platform == "" {
		return "", fmt.Errorf("bot platform is required")
	}
	if _, err := s.GetTenant(ctx, bot.TenantID); err != nil {
		return "", err
	}

	if bot.ID == "" {
		bot.ID = uuid.New().String()
	}
	now := time.Now()
	bot.CreatedAt = now
	bot.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(bot).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", ErrDuplicateBot
		}
		return "", err
	}
	return bot.ID, nil
}

// GetBot returns one bot by ID.
func (s *Store) GetBot(ctx context.Context, id string) (*Bot, error) {
	var bot Bot
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&bot).Error
	if err != nil {
		return nil, convertNotFoundError(err, ErrBotNotFound)
	}
	return &bot, nil
}

// ListBots returns every bot under one tenant ordered by name.
func (s *Store) ListBots(ctx context.Context, tenantID string) ([]*Bot, error) {
	var bots []*Bot
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("name").
		Find(&bots).Error; err != nil {
		return nil, err
	}
	return bots, nil
}

// SetBotEnabled flips one bot's enabled flag.
func (s *Store) SetBotEnabled(ctx context.Context, id string, enabled bool) error {
	result := s.db.WithContext(ctx).
		Model(&Bot{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"enabled":    enabled,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBotNotFound
	}
	return nil
}

// DeleteBot removes one bot.
func (s *Store) DeleteBot(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Bot{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBotNotFound
	}
	return nil
}

// isUniqueConstraintError checks if the error is a unique constraint
// violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite or PostgreSQL unique constraint errors
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key value violates unique constraint")
}

// convertNotFoundError converts gorm.ErrRecordNotFound to the
// appropriate domain error.
func convertNotFoundError(err error, notFoundErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundErr
	}
	return err
}
