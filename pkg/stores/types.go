package stores

import (
	"context"
	"time"
)

// PassStatus represents the status of a configuration pass
type PassStatus string

const (
	PassStatusRunning   PassStatus = "running"
	PassStatusCompleted PassStatus = "completed"
	PassStatusFailed    PassStatus = "failed"
)

// Pass represents one recorded configuration pass
type Pass struct {
	ID             string     `json:"id"`
	CatalogPath    string     `json:"catalog_path"`
	Status         PassStatus `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	FailurePackage *string    `json:"failure_package,omitempty"`
	FailureMessage *string    `json:"failure_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Decision represents one per-package verdict within a pass. Seq is the
// package's position in catalog declaration order.
type Decision struct {
	ID           int64     `json:"id"`
	PassID       string    `json:"pass_id"`
	Seq          int       `json:"seq"`
	Package      string    `json:"package"`
	Verdict      string    `json:"verdict"`
	Preference   string    `json:"preference"`
	Required     string    `json:"required"`
	AlreadyBuilt bool      `json:"already_built"`
	Note         *string   `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store defines the interface for the pass-history persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Pass operations
	CreatePass(ctx context.Context, pass *Pass) error
	GetPass(ctx context.Context, id string) (*Pass, error)
	FinishPass(ctx context.Context, id string, status PassStatus, failurePackage, failureMessage *string) error
	ListPasses(ctx context.Context, limit, offset int) ([]*Pass, error)
	DeletePass(ctx context.Context, id string) error

	// Decision operations
	AppendDecision(ctx context.Context, decision *Decision) error
	ListDecisions(ctx context.Context, passID string) ([]*Decision, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
