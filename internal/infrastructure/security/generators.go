package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// GenerateULID generates a new ULID string.
func GenerateULID() string {
	return ulid.Make().String()
}

// GenerateSiteUUID generates a stable storage uuid for a tenant site.
func GenerateSiteUUID() string {
	return uuid.NewString()
}

// GenerateSalt creates the random material for a tenant's rid salt: a uuid
// prefix plus secure random hex, long enough that salts never collide across
// rotations.
func GenerateSalt() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return uuid.NewString() + hex.EncodeToString(bytes), nil
}
