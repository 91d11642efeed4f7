// Package devicelist keeps the cached device lists of contacts in step with
// what they publish, and announces the local device in its own list.
package devicelist
