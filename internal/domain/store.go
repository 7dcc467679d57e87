package domain

import (
	"context"
	"time"
)

// ParameterStore persists named parameter values for the lifetime of a manager.
type ParameterStore interface {
	Set(ctx context.Context, name string, value any) error
	// Get returns the stored value and whether it was present.
	Get(ctx context.Context, name string) (any, bool, error)
	List(ctx context.Context) ([]Parameter, error)
	Close() error
}

type Parameter struct {
	Name      string    `json:"name"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
