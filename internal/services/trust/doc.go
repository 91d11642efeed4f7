// Package trust records the user's decisions about remote identities.
package trust
