// Package canonical produces deterministic JSON serializations and content
// hashes. Object keys are sorted recursively before serialization so hashes
// are portable across implementations and insertion orders.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Marshal serializes v to canonical JSON: the value is first flattened to
// generic maps and slices, then re-marshaled, which sorts every object's
// keys lexicographically.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}

	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal canonical form: %w", err)
	}

	return out, nil
}

// Hash returns the hex-encoded SHA-256 of the canonical serialization of v.
func Hash(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:]), nil
}

// HashString returns the hex-encoded SHA-256 of a raw string. Used for
// idempotency keys that are already in canonical form.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))

	return hex.EncodeToString(sum[:])
}
