// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable
// interpolation, which is how the Home Assistant URL and access token are
// normally injected.
package config
