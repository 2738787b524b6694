// Package feature provides feature flags shared by every instance of a
// horizontally scaled application.
//
// Flags are stored together in a single Redis key as a JSON object keyed by
// flag name. Mutations are optimistic read-modify-write updates of that
// object, so concurrent writers on different instances never lose each
// other's changes. After every successful change a ChangeMessage is
// published on the change channel and every provider drops its local memo.
// Between changes, reads are served from memory for at most RefreshInterval.
//
// # Usage
//
//	client := redis.New(cfg)
//	defer client.Close()
//
//	provider, err := feature.NewRedisProvider(ctx, client,
//		feature.WithStrategy("beta-users", feature.NewPercentageStrategy(20, userID)),
//	)
//	if err != nil {
//		return err
//	}
//	defer provider.Close()
//
//	enabled, err := provider.IsEnabled(ctx, "new-checkout")
//
// # Strategies
//
// Strategies are code, so they are registered on each provider with
// WithStrategy and referenced from a flag by name. A flag that is disabled
// is off regardless of its strategy; an enabled flag without a strategy is
// on for everyone. Built-in strategies: AlwaysStrategy, PercentageStrategy,
// EnvironmentStrategy and the NewAndStrategy / NewOrStrategy combinators. StrategyFunc adapts
// plain functions.
//
// # Seeding
//
// LoadFlags parses a YAML file with flag definitions and Seed creates the
// ones that are missing in one update, which makes it safe to run on every
// start-up.
//
// # Error Handling
//
//	flag, err := provider.GetFlag(ctx, "unknown")
//	if errors.Is(err, feature.ErrFlagNotFound) {
//		// Flag doesn't exist
//	}
//
// Store failures are joined with ErrOperationFailed and keep the underlying
// *redis.Error for errors.As.
package feature
