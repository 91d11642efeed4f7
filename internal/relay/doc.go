// Package relay carries device lists and bundles between devices.
//
// It provides two implementations of domain.PubSub: HTTP, a JSON over HTTP
// client for a keyserver, and Memory, an in-process store. Handler exposes a
// Memory over HTTP with the same routes HTTP talks to:
//
//	GET|PUT /devices/{address}
//	GET|PUT /bundles/{address}/{device}
//
// Every request accepts a context for cancellation and deadlines. Non-2xx
// statuses are returned as errors carrying the method, path and status.
package relay
