// Package main runs the in-memory HTTP keyserver that devices publish their
// device lists and pre-key bundles to during development and tests.
//
// HTTP API
//
//	GET /devices/{address}
//	    Return the device list of {address} and its version token.
//
//	PUT /devices/{address}
//	    Replace the device list of {address}; the version token changes.
//
//	GET /bundles/{address}/{device}
//	    Return the latest bundle published by one device.
//
//	PUT /bundles/{address}/{device}
//	    Publish the bundle of one device.
//
//	GET /metrics
//	    Prometheus metrics.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Documents are JSON. Non-2xx statuses carry a short error message.
//   - An access log records method, path, remote, status, bytes and
//     duration for each request.
//
// The keyserver never sees private keys or message content; it only stores
// public bundles and device ids.
package main
