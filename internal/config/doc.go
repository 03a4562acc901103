// Package config defines the application configuration structure and loads
// it from environment variables and optional config files. All settings are
// validated at load time so consumers never have to re-check them at point
// of use.
package config
