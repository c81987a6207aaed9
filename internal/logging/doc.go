// Package logging wraps zap for leafrun.
//
// New builds a core with either a console or JSON encoder. The TUI points it
// at a file in the data directory so log lines never tear the terminal; the
// one-shot CLI commands log to stderr. Initialize installs the result as the
// base logger and For hands out named sugared loggers per component:
//
//	logging.Initialize(logging.New(cfg.LogLevel, logging.ParseFormat(cfg.LogFormat), file))
//	log := logging.For("syncer")
//	log.Infow("drain finished", "synced", res.Synced, "failed", res.Failed)
package logging
