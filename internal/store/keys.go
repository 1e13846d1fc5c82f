package store

import (
	"cmp"
	"slices"
)

// sortedKeys returns a map's keys in ascending order. Save walks
// every map through this so the row insertion order, and with it the
// autoincrement rpc ids, are deterministic for a given document.
func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
