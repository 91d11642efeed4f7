// Package commands defines the omemoctl CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init         Create the configuration and key material of a device
//   - fingerprint  Print the own fingerprint or that of a remote device
//   - publish      Rotate the signed pre-key if due, publish bundle and device list
//   - rotate       Rotate the signed pre-key now and republish the bundle
//   - devices      Show the device list of an account with trust states
//   - trust        Trust or distrust the identity of a remote device
//   - send         Encrypt a message for one or more accounts
//   - recv         Decrypt a message addressed to this device
//   - purge        Replace all key material of this device
//   - version      Print the build version
//
// # Implementation
//
// The root command loads the TOML configuration and builds a dependency
// graph (store, services, keyserver client) before any subcommand runs.
// Envelopes travel as JSON on stdin and stdout; moving them between
// devices is left to the caller.
package commands
