package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptedKey matches every *CorruptedKeyError.
	ErrCorruptedKey = errors.New("omemo: corrupted key material")
	// ErrCannotEstablishSession matches every *CannotEstablishSessionError.
	ErrCannotEstablishSession = errors.New("omemo: cannot establish session")
	// ErrUndecidedIdentity matches every *UndecidedIdentityError.
	ErrUndecidedIdentity = errors.New("omemo: undecided identity")

	ErrInvalidKey       = errors.New("omemo: invalid key")
	ErrInvalidSignature = errors.New("omemo: invalid signed pre-key signature")
	ErrCipher           = errors.New("omemo: symmetric cipher failure")
	ErrIntegrity        = errors.New("omemo: message body failed authentication")
	ErrStorage          = errors.New("omemo: storage failure")
	ErrNoIdentity       = errors.New("omemo: no identity key pair; regenerate first")
	ErrNoSignedPreKey   = errors.New("omemo: no signed pre-key available")
	ErrNoSession        = errors.New("omemo: no session with device")
	ErrBuilderFinished  = errors.New("omemo: message builder already finished")
	ErrMalformedAddress = errors.New("omemo: malformed device address")
)

// CorruptedKeyError reports key material that could not be decoded.
type CorruptedKeyError struct {
	Device Device
	What   string
	Err    error
}

func (e *CorruptedKeyError) Error() string {
	msg := "omemo: corrupted " + e.What
	if e.Device != (Device{}) {
		msg += " of " + e.Device.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptedKeyError) Unwrap() error { return e.Err }

func (e *CorruptedKeyError) Is(target error) bool { return target == ErrCorruptedKey }

// Corrupted returns a *CorruptedKeyError for what.
func Corrupted(device Device, what string, err error) error {
	return &CorruptedKeyError{Device: device, What: what, Err: err}
}

// CannotEstablishSessionError reports that no session could be built with
// a device. It only ever affects that device.
type CannotEstablishSessionError struct {
	Device Device
	Err    error
}

func (e *CannotEstablishSessionError) Error() string {
	return fmt.Sprintf("omemo: cannot establish session with %s: %v", e.Device, e.Err)
}

func (e *CannotEstablishSessionError) Unwrap() error { return e.Err }

func (e *CannotEstablishSessionError) Is(target error) bool {
	return target == ErrCannotEstablishSession
}

// UndecidedIdentityError reports a recipient whose identity the user has
// neither trusted nor distrusted yet.
type UndecidedIdentityError struct {
	Device      Device
	Fingerprint Fingerprint
}

func (e *UndecidedIdentityError) Error() string {
	return fmt.Sprintf("omemo: identity %s of %s is undecided", e.Fingerprint, e.Device)
}

func (e *UndecidedIdentityError) Is(target error) bool { return target == ErrUndecidedIdentity }

// StorageError wraps an I/O error so that errors.Is(err, ErrStorage) holds.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
