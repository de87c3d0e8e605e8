package tenantstore

import (
	"errors"
	"time"
)

// Tenant is one isolated customer account on the platform. Every bot,
// conversation and media object hangs off a tenant.
type Tenant struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Plan      string    `gorm:"default:free;size:50" json:"plan"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Bot is one messenger bot registered under a tenant. Names are unique
// per tenant, not globally.
type Bot struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID  string    `gorm:"not null;size:36;uniqueIndex:idx_bots_tenant_name;index" json:"tenant_id"`
	Name      string    `gorm:"not null;size:100;uniqueIndex:idx_bots_tenant_name" json:"name"`
	Platform  string    `gorm:"not null;size:50" json:"platform"` // telegram, slack, discord
	Token     string    `gorm:"size:255" json:"-"`
	Enabled   bool      `gorm:"default:true" json:"enabled"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// allModels returns every model for SQLite auto-migration.
func allModels() []any {
	return []any{&Tenant{}, &Bot{}}
}

var (
	ErrTenantNotFound  = errors.New("tenantstore: tenant not found")
	ErrBotNotFound     = errors.New("tenantstore: bot not found")
	ErrDuplicateTenant = errors.New("tenantstore: tenant name already exists")
	ErrDuplicateBot    = errors.New("tenantstore: bot name already exists for tenant")
)
