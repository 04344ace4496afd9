// Package logger creates configured slog.Logger instances for the
// gatekeeper service.
//
// Production deployments use JSON output for log aggregation; development
// uses human-readable text. The factory reads its defaults from environment
// variables so the format can be switched without code changes.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithFormat(logger.FormatJSON),
//	    logger.WithLevel(slog.LevelInfo),
//	    logger.WithAttr(slog.String("service", "gatekeeper")),
//	)
package logger
