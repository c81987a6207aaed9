// Package config loads leafrun settings.
//
// # Resolution Order
//
//  1. Built-in defaults (Default)
//  2. TOML file: the explicit path, or ~/.config/leafrun/config.toml
//  3. LEAFRUN_* environment variables (envconfig, e.g. LEAFRUN_API_BASE)
//  4. Command-line flags, applied by cmd/leafrun after Load returns
//
// A missing file is not an error. Blank values in the file keep the
// default. Durations are written as Go duration strings ("10s", "1m").
//
// # Keys
//
//   - api_base, routes_path, reports_path, init_path: server endpoints
//   - promoter_id: whose route to fetch
//   - data_dir, store_backend (badger, sqlite, memory), namespace: local store
//   - request_timeout, sync_interval, probe_interval: timing
//   - priority_keyword: address fragment ordered first by optimize
//   - log_level, log_format: zap logger setup
//   - metrics_addr: when set, Prometheus metrics are served there
package config
