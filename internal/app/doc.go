// Package app wires application dependencies for the CLI.
//
// It loads the TOML configuration and builds the concrete store, key
// utility, keyserver client and high-level services of one local device,
// exposing them via the Wire struct for commands to use.
package app
