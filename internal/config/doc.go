// Package config loads rfbhost settings with Viper from environment
// variables and an optional .env file.
//
// Defaults come from the `default` struct tags; every nested key maps to an
// upper-cased environment variable:
//
//	HOST_DISPLAY=1 HOST_SHARED=false LOG_FORMAT=console rfbhost serve
//
// Command-line flags bind on top of the same viper instance (see cmd/rfbhost).
package config
