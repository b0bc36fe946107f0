package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jackzampolin/problembook/internal/extract"
	"github.com/jackzampolin/problembook/internal/llmcall"
	"github.com/jackzampolin/problembook/internal/solve"
)

// Badger is a Store on an embedded badger database.
//
// Key layout:
//
//	page/{book}/{page:06d}          PageRecord
//	problem/{id}                    extract.Problem
//	solution/{problem_id}/{sol_id}  solve.Solution
//	call/{unix_nanos:020d}/{call_id}  llmcall.Call
type Badger struct {
	db *badger.DB
}

// OpenBadger opens the store at path. An empty path opens an in-memory
// database.
func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &Badger{db: db}, nil
}

func pageKeyBytes(bookID string, page int) []byte {
	return []byte(fmt.Sprintf("page/%s/%06d", bookID, page))
}

func pagePrefix(bookID string) []byte {
	return []byte(fmt.Sprintf("page/%s/", bookID))
}

func problemKey(id string) []byte {
	return []byte("problem/" + id)
}

func solutionPrefix(problemID string) []byte {
	return []byte("solution/" + problemID + "/")
}

var callPrefix = []byte("call/")

func callKey(c llmcall.Call) []byte {
	return []byte(fmt.Sprintf("call/%020d/%s", c.Timestamp.UnixNano(), c.ID))
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func (b *Badger) SavePage(ctx context.Context, rec PageRecord) error {
	return b.db.Update(func(txn *badger.Txn) error {
		key := pageKeyBytes(rec.BookID, rec.Page)

		var old PageRecord
		switch err := getJSON(txn, key, &old); {
		case err == nil:
			if old.Result != nil {
				for _, p := range old.Result.Problems {
					if err := txn.Delete(problemKey(p.ID)); err != nil {
						return err
					}
				}
			}
		case !errors.Is(err, ErrNotFound):
			return err
		}

		if err := setJSON(txn, key, rec); err != nil {
			return err
		}
		if rec.Result != nil {
			for _, p := range rec.Result.Problems {
				if err := setJSON(txn, problemKey(p.ID), p); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (b *Badger) Page(ctx context.Context, bookID string, page int) (*PageRecord, error) {
	var rec PageRecord
	err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, pageKeyBytes(bookID, page), &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (b *Badger) Pages(ctx context.Context, bookID string) ([]PageRecord, error) {
	var out []PageRecord
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := pagePrefix(bookID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec PageRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortPages(out)
	return out, nil
}

func (b *Badger) Problem(ctx context.Context, id string) (*extract.Problem, error) {
	var p extract.Problem
	err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, problemKey(id), &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (b *Badger) Theory(ctx context.Context, bookID string, chapter int) ([]extract.TheoryBlock, error) {
	pages, err := b.Pages(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return chapterTheory(pages, chapter), nil
}

func (b *Badger) SaveSolution(ctx context.Context, s solve.Solution) error {
	return b.db.Update(func(txn *badger.Txn) error {
		key := append(solutionPrefix(s.ProblemID), s.ID...)
		return setJSON(txn, key, s)
	})
}

func (b *Badger) Solutions(ctx context.Context, problemID string) ([]solve.Solution, error) {
	var out []solve.Solution
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := solutionPrefix(problemID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var s solve.Solution
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &s)
			}); err != nil {
				return err
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortSolutions(out)
	return out, nil
}

func (b *Badger) SaveCall(ctx context.Context, c llmcall.Call) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, callKey(c), c)
	})
}

func (b *Badger) Calls(ctx context.Context, f llmcall.Filter) ([]llmcall.Call, error) {
	var all []llmcall.Call
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		start := callPrefix
		if !f.Since.IsZero() {
			start = callKey(llmcall.Call{Timestamp: f.Since})
		}
		for it.Seek(start); it.ValidForPrefix(callPrefix); it.Next() {
			var c llmcall.Call
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			}); err != nil {
				return err
			}
			all = append(all, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return selectCalls(all, f), nil
}

// PruneCalls deletes calls older than cutoff. Keys sort by timestamp, so
// the scan stops at the first newer call.
func (b *Badger) PruneCalls(ctx context.Context, cutoff time.Time) (int, error) {
	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		end := callKey(llmcall.Call{Timestamp: cutoff})
		for it.Seek(callPrefix); it.ValidForPrefix(callPrefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(end) {
				break
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}
