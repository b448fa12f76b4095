package ledger

import "hash/fnv"

// ShardFor hashes sessionID to one of numShards shards (spec.md §4.8:
// "sharded-by-session mode hashes session_id to one of K shards"). A
// non-cryptographic hash is deliberate: this is load distribution, not
// an integrity boundary (the integrity boundary is the chain's SHA-256
// linking, per pkg/ingestion's PartitionFor using the same rationale).
func ShardFor(sessionID string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(numShards))
}
