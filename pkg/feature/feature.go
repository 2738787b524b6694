package feature

import (
	"context"
	"slices"
	"time"
)

// Flag represents a feature flag with its configuration.
// Strategy names a rollout strategy registered locally on the provider;
// an empty name means the flag is evaluated by Enabled alone.
type Flag struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	Strategy    string    `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero" yaml:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitzero" yaml:"updated_at,omitempty"`
}

func (f *Flag) clone() *Flag {
	c := *f
	c.Tags = slices.Clone(f.Tags)
	return &c
}

func (f *Flag) hasAnyTag(tags []string) bool {
	for _, tag := range tags {
		if slices.Contains(f.Tags, tag) {
			return true
		}
	}
	return false
}

// Strategy defines different ways to roll out a feature.
type Strategy interface {
	// Evaluate determines if the feature should be enabled for a specific context.
	// Context should contain data required by the strategy (user ID, groups, etc.).
	Evaluate(ctx context.Context) (bool, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(ctx context.Context) (bool, error)

// Evaluate calls f(ctx).
func (f StrategyFunc) Evaluate(ctx context.Context) (bool, error) {
	return f(ctx)
}

// Action describes what happened to a flag.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
	ActionSeeded  Action = "seeded"
)

// ChangeMessage is published on the change channel after every successful
// modification of the shared flag set.
type ChangeMessage struct {
	ID     string `json:"id"`
	Flag   string `json:"flag,omitempty"`
	Action Action `json:"action"`
}

// Provider is the interface that all feature flag providers must implement.
type Provider interface {
	// IsEnabled checks if a feature flag is enabled for the given context.
	// If the flag doesn't exist, it returns false and ErrFlagNotFound.
	IsEnabled(ctx context.Context, flagName string) (bool, error)

	// GetFlag returns the full flag configuration.
	// If the flag doesn't exist, it returns nil and ErrFlagNotFound.
	GetFlag(ctx context.Context, flagName string) (*Flag, error)

	// ListFlags returns all available flags, optionally filtered by tags.
	ListFlags(ctx context.Context, tags ...string) ([]*Flag, error)

	// CreateFlag creates a new feature flag.
	// If a flag with the same name already exists, it returns ErrFlagExists.
	CreateFlag(ctx context.Context, flag *Flag) error

	// UpdateFlag updates an existing feature flag.
	// If the flag doesn't exist, it returns ErrFlagNotFound.
	UpdateFlag(ctx context.Context, flag *Flag) error

	// DeleteFlag deletes a feature flag.
	// If the flag doesn't exist, it returns ErrFlagNotFound.
	DeleteFlag(ctx context.Context, flagName string) error

	// Close releases any resources used by the provider.
	Close() error
}
