// Package logger builds *slog.Logger instances with functional options and
// provides attribute constructors so the store client, the cache and the
// toggle provider log with the same keys.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment("production", "toggles"),
//	)
//	logger.SetAsDefault(log)
//
//	log.Warn("subscription connection lost",
//	    logger.Component("redis"),
//	    logger.Channel("feature:flags:changed"),
//	    logger.Error(err),
//	)
//
// Error returns an empty attribute for a nil error, so call sites do not
// need their own nil check.
package logger
