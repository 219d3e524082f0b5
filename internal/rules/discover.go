// internal/rules/discover.go
package rules

import (
	"sort"
	"strconv"

	"github.com/solatis/labelkeeper/internal/types"
)

/*
 * Key discovery for rule authoring.
 *
 * Objects emit each key path and recurse into the value. Arrays emit
 * "prefix[]" and recurse into their first DiscoverySampleSize elements
 * as "prefix[i]"; the indexed path itself is not emitted. Scalars emit
 * nothing.
 */

// DiscoverPaths enumerates addressable key paths of a sample record for rule
// authoring. Arrays contribute a "prefix[]" entry plus the paths of their
// first types.DiscoverySampleSize elements. Output may contain duplicates and
// its order is not canonical; use DiscoverKeys for a sorted set.
func DiscoverPaths(sample types.Value) []string {
	return discover(sample, "", nil)
}

// DiscoverKeys returns the sorted, de-duplicated result of DiscoverPaths.
func DiscoverKeys(sample types.Value) []string {
	paths := DiscoverPaths(sample)
	seen := make(map[string]struct{}, len(paths))
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		keys = append(keys, p)
	}
	sort.Strings(keys)
	return keys
}

func discover(v types.Value, prefix string, acc []string) []string {
	switch v.Kind() {
	case types.KindObject:
		// Sorted keys keep output stable across runs.
		for _, k := range v.Keys() {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			acc = append(acc, path)
			child, _ := v.Field(k)
			acc = discover(child, path, acc)
		}
	case types.KindArray:
		acc = append(acc, prefix+"[]")
		n := min(v.Len(), types.DiscoverySampleSize)
		for i := 0; i < n; i++ {
			elem, _ := v.Index(i)
			acc = discover(elem, prefix+"["+strconv.Itoa(i)+"]", acc)
		}
	}
	return acc
}
