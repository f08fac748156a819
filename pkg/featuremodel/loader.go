package featuremodel

import (
	"context"

	"github.com/dd0wney/cluso-variantsynth/pkg/artifact"
	"github.com/dd0wney/cluso-variantsynth/pkg/cache"
)

// Loader reads and parses a feature model artifact. Parsed documents are
// memoized by content digest when Cache is set; a changed artifact hashes
// to a new key, so stale entries are never served.
type Loader struct {
	Store artifact.Store
	URI   string
	Cache *cache.LRU[*Document]
}

// Load returns the parsed document
func (l *Loader) Load(ctx context.Context) (*Document, error) {
	data, err := l.Store.Read(ctx, l.URI)
	if err != nil {
		return nil, err
	}

	key := artifact.Digest([]byte(l.URI), data)
	if doc, ok := l.Cache.Get(key); ok {
		return doc, nil
	}

	doc, err := Parse(data, FormatForPath(l.URI))
	if err != nil {
		return nil, err
	}
	l.Cache.Put(key, doc)
	return doc, nil
}
