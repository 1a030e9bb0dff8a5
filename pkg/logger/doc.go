// Package logger builds log/slog loggers for the coach plan services.
//
// New assembles a text or JSON handler from functional options and wraps it
// so attributes stored in a context.Context (request id, for example) are
// added to every record logged with the *Context methods.
//
//	log := logger.New(
//		logger.WithEnvironment(app.Env, app.Name),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "plan promoted", logger.CoachID(coachID), logger.Tier("basic"))
//
// The attribute helpers in attr.go keep key names consistent across
// packages. Helpers that receive an empty value return an empty slog.Attr,
// which slog skips, so callers do not need nil checks.
package logger
