package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// KeyPrefix namespaces all cache keys in Redis.
const KeyPrefix = "docapi:schemas"

// Key identifies the schema list of one entity as seen by one credential.
type Key struct {
	TenantID string
	Version  string
	Entity   string
	// CredentialHash is a short hash of the access key, never the key itself.
	CredentialHash string
}

// SchemaKey builds a Key, hashing the access key.
func SchemaKey(tenantID, version, entity, accessKey string) Key {
	sum := sha256.Sum256([]byte(accessKey))
	return Key{
		TenantID:       tenantID,
		Version:        version,
		Entity:         entity,
		CredentialHash: hex.EncodeToString(sum[:8]),
	}
}

// String generates a deterministic Redis key.
// Format: docapi:schemas:tenant:version:entity:hash
func (k Key) String() string {
	return strings.Join([]string{KeyPrefix, k.TenantID, k.Version, k.Entity, k.CredentialHash}, ":")
}
