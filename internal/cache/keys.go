package cache

import (
	"fmt"

	"github.com/metagraph-dev/metagraph/pkg/schema"
	"github.com/metagraph-dev/metagraph/runtime/registry"
)

// fingerprintLen is how much of the snapshot fingerprint goes into a key
const fingerprintLen = 16

// RelationshipKey returns the key for one relationship query against the
// snapshot with the given fingerprint. Keys for different snapshots never
// collide, so a schema reload needs no explicit invalidation.
//
//	rel:<fingerprint>:<direction>:<entity>
func RelationshipKey(fingerprint string, dir registry.Direction, entity string) string {
	return fmt.Sprintf("rel:%s:%s:%s", shortFingerprint(fingerprint), dir, schema.EntityKey(entity))
}

// SearchableKey returns the key for an entity's searchable-field descriptors
func SearchableKey(fingerprint, entity string) string {
	return fmt.Sprintf("search:%s:%s", shortFingerprint(fingerprint), schema.EntityKey(entity))
}

func shortFingerprint(fp string) string {
	if len(fp) > fingerprintLen {
		return fp[:fingerprintLen]
	}
	return fp
}
