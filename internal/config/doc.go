// Package config provides configuration loading and validation for the caption daemon.
// It handles YAML-based configuration with struct validation and exposes typed
// accessors for duration-valued parameters.
package config
