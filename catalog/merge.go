// Package catalog merges harvested batches into the persisted product
// catalog and summarises it.
package catalog

import (
	"strings"

	"github.com/aluiziolira/catalog-harvester/models"
)

// Merge combines the existing catalog with a newly harvested batch. Records
// are visited existing-first, so a later record overrides an earlier one
// with the same identity key while keeping the earlier position. Records
// with a blank key cannot be compared and are dropped from the result.
func Merge(existing, batch []models.ProductRecord) []models.ProductRecord {
	index := make(map[string]int, len(existing)+len(batch))
	out := make([]models.ProductRecord, 0, len(existing)+len(batch))

	insert := func(records []models.ProductRecord) {
		for _, r := range records {
			key := strings.TrimSpace(r.IdentityKey)
			if key == "" {
				continue
			}
			if i, ok := index[key]; ok {
				out[i] = r
				continue
			}
			index[key] = len(out)
			out = append(out, r)
		}
	}
	insert(existing)
	insert(batch)
	return out
}

// Keyless counts records that Merge would drop for lack of an identity key.
func Keyless(records []models.ProductRecord) int {
	n := 0
	for _, r := range records {
		if strings.TrimSpace(r.IdentityKey) == "" {
			n++
		}
	}
	return n
}
