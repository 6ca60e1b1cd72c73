package classification

import (
	"sort"

	"github.com/Veraticus/onion-topology/internal/model"
)

// Cache maps header fingerprints to saved classification records.
//
// A Cache is a value: With returns a new Cache and leaves the receiver untouched, and
// Lookup hands out copies. Records are only ever added or replaced per fingerprint,
// so a record saved for one file layout is never visible under another.
type Cache struct {
	records map[model.HeaderFingerprint]model.ClassificationRecord
}

// NewCache builds a cache from previously persisted records.
func NewCache(records map[model.HeaderFingerprint]model.ClassificationRecord) Cache {
	c := Cache{records: make(map[model.HeaderFingerprint]model.ClassificationRecord, len(records))}
	for fp, rec := range records {
		c.records[fp] = rec.Clone()
	}
	return c
}

// Lookup returns a copy of the record saved for fp.
func (c Cache) Lookup(fp model.HeaderFingerprint) (model.ClassificationRecord, bool) {
	rec, ok := c.records[fp]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// With returns a cache in which fp maps to rec. The receiver is not modified.
func (c Cache) With(fp model.HeaderFingerprint, rec model.ClassificationRecord) Cache {
	next := Cache{records: make(map[model.HeaderFingerprint]model.ClassificationRecord, len(c.records)+1)}
	for k, v := range c.records {
		next.records[k] = v
	}
	next.records[fp] = rec.Clone()
	return next
}

// Len returns the number of fingerprints with a saved record.
func (c Cache) Len() int {
	return len(c.records)
}

// Fingerprints lists the cached fingerprints in sorted order.
func (c Cache) Fingerprints() []model.HeaderFingerprint {
	fps := make([]model.HeaderFingerprint, 0, len(c.records))
	for fp := range c.records {
		fps = append(fps, fp)
	}
	sort.Slice(fps, func(i, j int) bool { return fps[i] < fps[j] })
	return fps
}
