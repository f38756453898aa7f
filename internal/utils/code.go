package utils

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// codeEncoding drops padding; the alphabet is uppercase base32, which scans
// cleanly and avoids ambiguous characters in printed QR labels.
var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// RandomCode returns an unguessable token with n random bytes of entropy
// (n=10 gives 80 bits, comfortably above the 64-bit floor for scannable codes).
func RandomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return codeEncoding.EncodeToString(buf), nil
}

// QrCodeString builds the opaque code for a QR record, prefixed by its kind so
// operators can eyeball what a printed code is for. The suffix carries all the
// entropy; prefixes are not part of the uniqueness guarantee.
func QrCodeString(prefix string) (string, error) {
	suffix, err := RandomCode(10)
	if err != nil {
		return "", err
	}
	prefix = strings.ToUpper(strings.TrimSuffix(prefix, "-"))
	if prefix == "" {
		return suffix, nil
	}
	return prefix + "-" + suffix, nil
}
