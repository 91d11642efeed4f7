package app

import (
	"context"
	"time"

	"omemo/internal/domain"
)

// Setup prepares the local device for messaging: it generates key material
// on a fresh installation, rotates the signed pre-key when it is due, and
// publishes the bundle and the own device list.
func (w *Wire) Setup(ctx context.Context, now time.Time) (domain.Fingerprint, error) {
	fresh, err := w.Identity.IsFreshInstallation()
	if err != nil {
		return "", err
	}
	if fresh {
		if _, err := w.PreKeys.Regenerate(); err != nil {
			return "", err
		}
	} else {
		rotate, err := w.PreKeys.ShouldRotate(now)
		if err != nil {
			return "", err
		}
		if rotate {
			if _, err := w.PreKeys.RotateSignedPreKey(now); err != nil {
				return "", err
			}
		}
	}
	if _, err := w.PreKeys.Publish(ctx); err != nil {
		return "", err
	}
	if err := w.Devices.AnnounceOwn(ctx); err != nil {
		return "", err
	}
	return w.Identity.Fingerprint()
}

// Purge wipes the key material of the local device and sets it up again
// with a new identity. Every session is lost.
func (w *Wire) Purge(ctx context.Context, now time.Time) (domain.Fingerprint, error) {
	if err := w.Identity.Purge(); err != nil {
		return "", err
	}
	w.Log.Noticef("Purged key material of %s", w.Own)
	return w.Setup(ctx, now)
}
