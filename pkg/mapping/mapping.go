// Package mapping cross-references the CWE ids of a CVE record against the
// static CWE to ATT&CK table.
package mapping

import (
	"sort"

	"github.com/exploopio/cvemap/pkg/nvd"
	"github.com/exploopio/cvemap/pkg/tables"
)

// AttackMapping maps an ATT&CK technique id to its name.
type AttackMapping map[string]string

// IDs returns the technique ids in lexical order.
func (m AttackMapping) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve collects every weakness value of cve, deduplicates them, and merges
// the technique pairs of each value found in techniques.
//
// Values are looked up verbatim; "NVD-CWE-noinfo" or free text are treated
// like any other key. Values absent from techniques add nothing to the
// mapping but stay in the returned list, which keeps first-seen order. When
// two CWEs name the same technique id, the later CWE's name wins.
func Resolve(cve *nvd.CVE, techniques tables.TechniqueMap) (AttackMapping, []string) {
	result := AttackMapping{}
	cweIDs := Dedupe(cve.WeaknessValues())

	for _, cweID := range cweIDs {
		entry, ok := techniques[cweID]
		if !ok {
			continue
		}
		for _, pair := range entry.Pairs() {
			result[pair[0]] = pair[1]
		}
	}

	return result, cweIDs
}

// Dedupe returns values without repeats, in first-seen order.
func Dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
