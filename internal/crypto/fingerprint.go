package crypto

import (
	"encoding/hex"

	"omemo/internal/domain"
)

// Fingerprint returns the lower-case hex form of an identity key (64
// characters), the representation users compare out of band.
func Fingerprint(key domain.IdentityKey) domain.Fingerprint {
	return domain.Fingerprint(hex.EncodeToString(key[:]))
}
