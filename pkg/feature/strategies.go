package feature

import (
	"context"
	"errors"
	"hash/fnv"
	"slices"
)

// AlwaysStrategy is a strategy that always returns the same value.
type AlwaysStrategy struct {
	Value bool
}

// Evaluate returns the configured value for all contexts.
func (s *AlwaysStrategy) Evaluate(ctx context.Context) (bool, error) {
	return s.Value, nil
}

// NewAlwaysOnStrategy creates a strategy that enables the feature for all users.
func NewAlwaysOnStrategy() Strategy {
	return &AlwaysStrategy{Value: true}
}

// NewAlwaysOffStrategy creates a strategy that disables the feature for all users.
func NewAlwaysOffStrategy() Strategy {
	return &AlwaysStrategy{Value: false}
}

// SubjectExtractor returns the identity a rollout is keyed on, usually a
// user or tenant ID.
type SubjectExtractor func(ctx context.Context) string

// PercentageStrategy enables a feature for a stable share of subjects.
// The same subject always lands in the same bucket on every instance.
type PercentageStrategy struct {
	Percentage int
	subject    SubjectExtractor
}

// NewPercentageStrategy creates a rollout for percentage of the subjects
// returned by subject.
func NewPercentageStrategy(percentage int, subject SubjectExtractor) Strategy {
	return &PercentageStrategy{Percentage: percentage, subject: subject}
}

// Evaluate hashes the subject with FNV-1a into one of 100 buckets.
// Without a subject the feature is off unless the rollout is complete.
func (s *PercentageStrategy) Evaluate(ctx context.Context) (bool, error) {
	if s.Percentage < 0 || s.Percentage > 100 {
		return false, errors.Join(ErrInvalidStrategy,
			errors.New("percentage must be between 0 and 100"))
	}

	switch s.Percentage {
	case 0:
		return false, nil
	case 100:
		return true, nil
	}

	var id string
	if s.subject != nil {
		id = s.subject(ctx)
	}
	if id == "" {
		return false, nil
	}

	hash := fnv.New32a()
	hash.Write([]byte(id))
	return int(hash.Sum32()%100) < s.Percentage, nil
}

// EnvironmentExtractor returns the environment the caller runs in.
type EnvironmentExtractor func(ctx context.Context) string

// EnvironmentStrategy enables features in specific environments only.
type EnvironmentStrategy struct {
	EnabledEnvironments []string
	environment         EnvironmentExtractor
}

// NewEnvironmentStrategy creates a strategy that enables the feature in the
// listed environments.
func NewEnvironmentStrategy(environments []string, extract EnvironmentExtractor) Strategy {
	return &EnvironmentStrategy{EnabledEnvironments: environments, environment: extract}
}

// StaticEnvironment returns an extractor for a process-wide environment,
// typically read from configuration at start-up.
func StaticEnvironment(env string) EnvironmentExtractor {
	return func(context.Context) string { return env }
}

// Evaluate checks if the feature should be enabled for the current environment.
func (s *EnvironmentStrategy) Evaluate(ctx context.Context) (bool, error) {
	if len(s.EnabledEnvironments) == 0 {
		return false, ErrInvalidStrategy
	}
	if s.environment == nil {
		return false, nil
	}

	env := s.environment(ctx)
	return env != "" && slices.Contains(s.EnabledEnvironments, env), nil
}

// NewAndStrategy creates a strategy that requires all child strategies to return true.
func NewAndStrategy(strategies ...Strategy) Strategy {
	return StrategyFunc(func(ctx context.Context) (bool, error) {
		if len(strategies) == 0 {
			return false, ErrInvalidStrategy
		}
		for _, s := range strategies {
			enabled, err := s.Evaluate(ctx)
			if err != nil || !enabled {
				return false, err
			}
		}
		return true, nil
	})
}

// NewOrStrategy creates a strategy that requires at least one child strategy to return true.
func NewOrStrategy(strategies ...Strategy) Strategy {
	return StrategyFunc(func(ctx context.Context) (bool, error) {
		if len(strategies) == 0 {
			return false, ErrInvalidStrategy
		}
		for _, s := range strategies {
			enabled, err := s.Evaluate(ctx)
			if err != nil {
				return false, err
			}
			if enabled {
				return true, nil
			}
		}
		return false, nil
	})
}
