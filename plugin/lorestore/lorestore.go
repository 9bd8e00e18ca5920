// Package lorestore keeps a persistent semantic index of lorebook entries so
// generation turns can pull relevant world information into the prompt.
package lorestore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
)

// SearchResult is a single semantic-search hit.
type SearchResult struct {
	EntryID int32
	Content string
	Score   float32
}

// Store wraps chromem-go with a single lore collection and disk persistence.
type Store struct {
	mu      sync.RWMutex
	db      *chromem.DB
	embedFn chromem.EmbeddingFunc
}

const collectionName = "lorebook_entries"

// New creates (or opens) the persistent lore index at dataDir/lorestore/.
// embedFunc is typically chromem.NewEmbeddingFuncOpenAICompat pointed at the
// backend's embeddings endpoint.
func New(dataDir string, embedFunc chromem.EmbeddingFunc) (*Store, error) {
	dir := filepath.Join(dataDir, "lorestore")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.Wrap(err, "create lorestore dir")
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, errors.Wrap(err, "open lorestore")
	}
	return &Store{db: db, embedFn: embedFunc}, nil
}

func (s *Store) collection() *chromem.Collection {
	col := s.db.GetCollection(collectionName, s.embedFn)
	if col == nil {
		var err error
		col, err = s.db.CreateCollection(collectionName, nil, s.embedFn)
		if err != nil {
			slog.Error("failed to create lore collection", "err", err)
			return nil
		}
	}
	return col
}

// UpsertEntry indexes (or re-indexes) one lorebook entry. keys is the
// entry's comma-separated trigger keywords; they are indexed alongside the
// content so key hits rank well.
func (s *Store) UpsertEntry(ctx context.Context, entryID int32, keys, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collection()
	if col == nil {
		return errors.New("lorestore: nil collection")
	}
	doc := chromem.Document{
		ID:      fmt.Sprintf("entry-%d", entryID),
		Content: keys + "\n" + content,
		Metadata: map[string]string{
			"keys": keys,
		},
	}
	return col.AddDocument(ctx, doc)
}

// Search returns the content of the top-k entries most similar to the query.
func (s *Store) Search(ctx context.Context, query string, k int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.collection()
	if col == nil {
		return nil, nil
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	var results []chromem.Result
	var err error
	// chromem-go sometimes throws "nResults must be <= number of documents"
	// despite Count checks. Step down k if it fails.
	for attemptK := k; attemptK > 0; attemptK-- {
		results, err = col.Query(ctx, query, attemptK, nil, nil)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Content)
	}
	return out, nil
}
