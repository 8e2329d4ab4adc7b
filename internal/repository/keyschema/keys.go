// Package keyschema maps chat and owner identifiers to Redis keys.
package keyschema

import (
	"fmt"
	"strings"
)

// DefaultVersion is embedded in owner index keys so an incompatible encoding
// can live next to old data during a migration.
const DefaultVersion = "v2"

const chatPrefix = "chat:"

func ChatKey(id string) string {
	return chatPrefix + id
}

// ChatIdFromKey is the inverse of ChatKey. ok is false for foreign keys.
func ChatIdFromKey(key string) (id string, ok bool) {
	if !strings.HasPrefix(key, chatPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, chatPrefix), true
}

func OwnerIndexKey(version, ownerId string) string {
	if version == "" {
		version = DefaultVersion
	}
	return fmt.Sprintf("user:%s:chat:%s", version, ownerId)
}
