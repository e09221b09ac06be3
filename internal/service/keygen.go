package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"keymint/internal/models"
)

// keyRandomBytes is the entropy per key: 128 bits, enough that a collision
// is statistically impossible rather than a handled path. Uniqueness is
// still enforced by the store's primary key.
const keyRandomBytes = 16

// GenerateKey produces a license key of the form
// KM-MTH-XXXX-XXXX-XXXX-XXXX-XXXX-XXXX-XXXX-XXXX with a class-derived
// prefix. It never consults the store.
func GenerateKey(class models.LicenseClass) (string, error) {
	b := make([]byte, keyRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read randomness: %w", err)
	}

	random := strings.ToUpper(hex.EncodeToString(b))
	groups := make([]string, 0, len(random)/4)
	for i := 0; i < len(random); i += 4 {
		groups = append(groups, random[i:i+4])
	}

	return class.Prefix() + "-" + strings.Join(groups, "-"), nil
}
