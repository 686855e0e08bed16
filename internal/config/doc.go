// Package config loads application settings from defaults, an optional YAML
// file and TASKER_-prefixed environment variables, then validates them with
// struct tags before any component starts.
package config
