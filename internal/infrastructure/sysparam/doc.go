// Package sysparam stores persisted system parameters.
//
// Parameters live in a single file (YAML, JSON or TOML, selected by
// extension) read through viper. The only parameter today is
// max_process_cache_num, the warm process cache capacity; 0 turns the
// cache off. Watch hooks viper's fsnotify watcher so edits to the file
// can trigger a capacity refresh without a restart.
package sysparam
