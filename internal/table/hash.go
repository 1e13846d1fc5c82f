package table

// Group identity is a pure function of the group name so that
// application-group links keep resolving after stored groups are
// dropped and recreated during a full policy save. An auto-increment
// key would reassign ids on every refresh and silently detach every
// application from its groups.
//
// The hash is djb2 over the name bytes, folded to 32 bits signed and
// absolute-valued. Distinct names hashing to the same id are NOT
// detected; the id space is 2^31 and group sets are small (tens of
// entries), so the risk is accepted rather than guarded. See
// DESIGN.md.

const djb2Seed = 5381

// djb2 computes the 32-bit djb2 hash of s.
func djb2(s string) int32 {
	hash := int32(djb2Seed)
	for i := 0; i < len(s); i++ {
		hash = hash*33 + int32(s[i])
	}
	return hash
}

// GroupID returns the storage identity of a functional group name.
// The result is non-negative and deterministic for a given name.
func GroupID(name string) int64 {
	id := int64(djb2(name))
	if id < 0 {
		id = -id
	}
	return id
}

// SchemaHash returns the version marker for a schema definition text.
// A stored marker differing from the current one signals a stale
// on-disk schema that must be refreshed before use.
func SchemaHash(schema string) int32 {
	return djb2(schema)
}
