package record

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// HashLength is the number of hex characters in a row hash.
const HashLength = 32

// NewHash derives a row identifier from the entity content and insertion time.
// A random salt keeps identical resubmissions distinct.
func NewHash(entity Entity, created time.Time) (string, error) {
	payload, err := json.Marshal(entity)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", entity.Kind(), err)
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	sum := sha256.New()
	sum.Write([]byte(entity.Kind()))
	sum.Write([]byte{0})
	sum.Write(payload)
	sum.Write([]byte{0})
	sum.Write([]byte(created.UTC().Format(time.RFC3339Nano)))
	sum.Write(salt)
	return hex.EncodeToString(sum.Sum(nil))[:HashLength], nil
}
