// Package config holds run options and the site layouts leadscan reads.
//
// Values are layered: built-in defaults, then the YAML config file
// (.leadscan), then LEADSCAN_* environment variables, then CLI flags.
package config
