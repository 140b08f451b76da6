// Package observability provides structured logging for the relying
// party library.
//
// This package wraps zap behind a small Logger interface so that the
// other packages can accept any logger (including the no-op logger used
// as the default) without depending on zap directly.
//
// # Logging
//
// The Logger interface provides structured logging:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("signin response validated",
//	    observability.String("subject", sub),
//	)
package observability
