// Package config loads and validates the chatrelay gateway configuration
// from a YAML file with ${ENV_VAR} expansion.
package config
