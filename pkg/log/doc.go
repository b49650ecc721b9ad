/*
Package log provides structured logging for Lazabot using zerolog.

Init configures the process-wide root logger once at startup; components
derive tagged children from it. Long-running commands (monitor, buy) log
per-iteration failures at warn level and keep running; fatal logging is
reserved for unrecoverable initialization errors.

Child loggers carry the identifiers that matter when tracing a purchase
attempt across subsystems:

	logger := log.WithComponent("checkout")
	logger.Info().Str("order_id", id).Msg("checkout succeeded")

	log.WithProductID("PROD123").Warn().Err(err).Msg("availability check failed")
*/
package log
