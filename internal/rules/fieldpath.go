// internal/rules/fieldpath.go
package rules

import (
	"errors"
	"strconv"
	"strings"

	"github.com/solatis/labelkeeper/internal/types"
)

/*
 * Key path resolution for records.
 *
 * Grammar: segments separated by '.', each optionally carrying one trailing
 * bracketed non-negative integer index (items[0]). Empty segments are
 * skipped, so leading, trailing and doubled separators are harmless.
 *
 * Key functions:
 *   - ParsePath: compiles a path string into []types.PathSegment
 *   - Resolve: parses and walks a path against a record
 *   - ResolveSegments: walks a pre-compiled path
 *
 * Resolution never fails loudly. Any structural mismatch (non-object cursor,
 * absent key, non-array or out-of-range index, malformed path) yields
 * Found=false, which the evaluator treats as "this condition cannot hold".
 * A stored JSON null resolves with Found=true.
 */

var errMalformedSegment = errors.New("malformed path segment")

// ResolveResult contains the resolved value. Found=false means the path does
// not exist in the record (Missing), which is distinct from a null leaf.
type ResolveResult struct {
	Value types.Value
	Found bool
}

// ParsePath compiles a dotted/indexed key path.
// A bracketed segment name[n] becomes a Key segment followed by an Index
// segment. Returns an error for malformed brackets or non-integer indices.
func ParsePath(path string) ([]types.PathSegment, error) {
	parts := strings.Split(path, ".")
	segments := make([]types.PathSegment, 0, len(parts))

	for _, part := range parts {
		if part == "" {
			continue
		}

		open := strings.IndexByte(part, '[')
		if open < 0 {
			if strings.IndexByte(part, ']') >= 0 {
				return nil, errMalformedSegment
			}
			segments = append(segments, types.PathSegment{Key: part})
			continue
		}

		// Exactly one bracket pair, closing at the end of the segment.
		if !strings.HasSuffix(part, "]") || strings.Count(part, "[") != 1 || strings.Count(part, "]") != 1 {
			return nil, errMalformedSegment
		}
		idx, err := parseIndex(part[open+1 : len(part)-1])
		if err != nil {
			return nil, err
		}

		segments = append(segments,
			types.PathSegment{Key: part[:open]},
			types.PathSegment{Index: idx, IsIndex: true},
		)
	}

	return segments, nil
}

// Resolve walks path against record. Malformed paths resolve to Missing.
func Resolve(record types.Value, path string) ResolveResult {
	segments, err := ParsePath(path)
	if err != nil {
		return ResolveResult{}
	}
	return ResolveSegments(record, segments)
}

// ResolveSegments walks a compiled path against record.
func ResolveSegments(record types.Value, segments []types.PathSegment) ResolveResult {
	cur := record
	for _, seg := range segments {
		var (
			next types.Value
			ok   bool
		)
		if seg.IsIndex {
			next, ok = cur.Index(seg.Index)
		} else {
			next, ok = cur.Field(seg.Key)
		}
		if !ok {
			return ResolveResult{}
		}
		cur = next
	}
	return ResolveResult{Value: cur, Found: true}
}

// PathDepth returns the number of compiled segments in path, or an error if
// path is malformed.
func PathDepth(path string) (int, error) {
	segments, err := ParsePath(path)
	if err != nil {
		return 0, err
	}
	return len(segments), nil
}

// parseIndex accepts a non-empty run of ASCII digits. Signs are malformed.
func parseIndex(s string) (int, error) {
	if s == "" {
		return 0, errMalformedSegment
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, errMalformedSegment
		}
	}
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, errMalformedSegment
	}
	return idx, nil
}
