// Package domain defines the core data models, errors and interfaces shared
// across the module. It contains plain types (wire/state) and contracts
// (interfaces) only; the subpackages hold the definitions and this package
// re-exports them under short names.
package domain
