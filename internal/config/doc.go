// Package config loads feedline's configuration and viewer preferences.
//
// # Configuration Discovery
//
// Load follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/feedline/config.toml
//  3. If the file doesn't exist, fall back to defaults
//  4. If the file exists but fields are missing or blank, use defaults
//
// After merging, the result is checked with validator struct tags. A
// page_size outside 1..100 or an unknown log level is an error rather than a
// silent fallback.
//
// # TOML Format
//
//	api_base = "127.0.0.1:8080"
//	timeline = "home"
//	page_size = 20
//	poll_interval = "30s"   # "0s" or absent disables auto refresh
//	cache_path = "~/.local/share/feedline/cache.db"   # "off" disables
//	log_path = "~/.local/state/feedline/feedline.log" # or "stderr"
//	log_level = "info"
//	log_format = "json"     # or "console"
//	metrics_addr = "127.0.0.1:9464"
//
// Tilde expansion is performed for cache_path and log_path.
//
// # Preferences
//
// Viewer preferences (theme, timestamp column) live in a separate
// prefs.toml that the TUI rewrites when the user changes them. Unlike
// config.toml, a broken prefs file never blocks startup.
package config
