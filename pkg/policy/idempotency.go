package policy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/quorumlabs/warden/pkg/canonical"
)

const keyPairSeparator = "|"

// DeriveIdempotencyKey builds the stable key for one logical execution of an
// action: the policy's field template is sorted, each named field is
// extracted from the action context (objects serialized with sorted keys),
// and the pairs are joined as field=value. Two calls with the same field
// values always produce the same key regardless of input key insertion
// order.
func DeriveIdempotencyKey(actionType string, keyFields []string, actionContext map[string]any) (string, error) {
	fields := append([]string(nil), keyFields...)
	slices.Sort(fields)

	pairs := make([]string, 0, len(fields)+1)
	pairs = append(pairs, "action="+actionType)

	for _, field := range fields {
		value, ok := actionContext[field]
		if !ok {
			pairs = append(pairs, field+"=")

			continue
		}

		serialized, err := serializeKeyValue(value)
		if err != nil {
			return "", fmt.Errorf("failed to serialize key field %q: %w", field, err)
		}

		pairs = append(pairs, field+"="+serialized)
	}

	return strings.Join(pairs, keyPairSeparator), nil
}

// HashIdempotencyKey returns the content-addressed, non-reversible form of
// the key used for storage and lookup.
func HashIdempotencyKey(key string) string {
	return canonical.HashString(key)
}

func serializeKeyValue(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		data, err := canonical.Marshal(v)
		if err != nil {
			return "", err
		}

		return string(data), nil
	}
}
