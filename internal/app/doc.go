// Package app is the composition root for leafrun.
//
// # Overview
//
// Open turns a config file, environment and CLI overrides into a Runtime:
// the local store, pending queue, connectivity oracle, API client, sync
// engine and route controller, all wired together. The TUI and every CLI
// command start from the same Runtime, so they share one set of semantics.
//
// # Startup
//
//	┌──────────────┐
//	│   Open()     │ Wire components (no network I/O)
//	└──────┬───────┘
//	       ├─────> config.Load()         TOML, then LEAFRUN_* env
//	       ├─────> logging.New()         stderr, or leafrun.log for the TUI
//	       ├─────> localstore.Open()     badger, sqlite or memory
//	       ├─────> queue.NewManager()    depth reported to Prometheus
//	       ├─────> connectivity Monitor  or Manual(false) with --offline
//	       ├─────> api.NewClient()       transport outcomes feed the monitor
//	       ├─────> syncer.New()
//	       └─────> controller.New()
//
// # Background Work
//
// Background runs under an errgroup:
//
//   - the connectivity monitor's probe loop
//   - RunSyncLoop: drain on every went-online event, plus a periodic drain
//     while work is pending; consecutive failing passes stretch the period
//     exponentially (capped at five minutes)
//   - the Prometheus /metrics server when metrics_addr is set
//
// # TUI
//
// RunTUI probes connectivity, loads the route, starts Background and then
// blocks in ui.Run. Logs go to <data_dir>/leafrun.log so the terminal stays
// clean; the log view tails that file.
package app
