package vectorstore

import (
	"context"
	"sort"
	"sync"
)

// Fake is an in-memory Client used by other packages' tests (indexer,
// queryclient, resume) so they can exercise upsert/query/get/count
// semantics without a network dependency.
type Fake struct {
	mu sync.Mutex

	collections map[string]bool
	docs        map[string]map[string]*fakeDoc // collection -> id -> doc

	// UpsertErr, when set, is returned (and not recorded) by the next
	// call to Upsert; it is consumed after firing once.
	UpsertErr error
}

type fakeDoc struct {
	text     string
	metadata map[string]any
}

// NewFake constructs an empty Fake store.
func NewFake() *Fake {
	return &Fake{
		collections: make(map[string]bool),
		docs:        make(map[string]map[string]*fakeDoc),
	}
}

func (f *Fake) GetOrCreateCollection(_ context.Context, name string) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[name] = true
	if f.docs[name] == nil {
		f.docs[name] = make(map[string]*fakeDoc)
	}
	return Handle{Name: name}, nil
}

func (f *Fake) Upsert(_ context.Context, h Handle, ids, texts []string, metadatas []map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.UpsertErr != nil {
		err := f.UpsertErr
		f.UpsertErr = nil
		return err
	}

	coll := f.docs[h.Name]
	if coll == nil {
		coll = make(map[string]*fakeDoc)
		f.docs[h.Name] = coll
	}
	for i, id := range ids {
		var md map[string]any
		if i < len(metadatas) {
			md = metadatas[i]
		}
		coll[id] = &fakeDoc{text: texts[i], metadata: md}
	}
	return nil
}

func (f *Fake) Delete(_ context.Context, h Handle, where Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	coll := f.docs[h.Name]
	if coll == nil {
		return nil
	}
	for id, d := range coll {
		if matchesFilter(d.metadata, where) {
			delete(coll, id)
		}
	}
	return nil
}

func (f *Fake) Query(_ context.Context, h Handle, texts []string, nResults int, where Filter) (*QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := &QueryResult{}
	coll := f.docs[h.Name]
	for range texts {
		var ids []string
		for id, d := range coll {
			if matchesFilter(d.metadata, where) {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		if nResults > 0 && len(ids) > nResults {
			ids = ids[:nResults]
		}
		var dists []float64
		var docs []string
		var mds []map[string]any
		for i, id := range ids {
			dists = append(dists, float64(i)*0.01)
			docs = append(docs, coll[id].text)
			mds = append(mds, coll[id].metadata)
		}
		result.IDs = append(result.IDs, ids)
		result.Distances = append(result.Distances, dists)
		result.Documents = append(result.Documents, docs)
		result.Metadatas = append(result.Metadatas, mds)
	}
	return result, nil
}

func (f *Fake) Get(_ context.Context, h Handle, ids []string, where Filter, limit, offset int) (*GetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	coll := f.docs[h.Name]
	var matched []string
	if len(ids) > 0 {
		for _, id := range ids {
			if d, ok := coll[id]; ok && matchesFilter(d.metadata, where) {
				matched = append(matched, id)
			}
		}
	} else {
		for id, d := range coll {
			if matchesFilter(d.metadata, where) {
				matched = append(matched, id)
			}
		}
		sort.Strings(matched)
	}

	if offset > 0 {
		if offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[offset:]
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	result := &GetResult{}
	for _, id := range matched {
		d := coll[id]
		result.IDs = append(result.IDs, id)
		result.Documents = append(result.Documents, d.text)
		result.Metadatas = append(result.Metadatas, d.metadata)
	}
	return result, nil
}

func (f *Fake) Count(_ context.Context, h Handle, where Filter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	coll := f.docs[h.Name]
	n := 0
	for _, d := range coll {
		if matchesFilter(d.metadata, where) {
			n++
		}
	}
	return n, nil
}

// matchesFilter implements just enough of the operator set for
// the Fake to be useful in tests: field equality, $eq, $ne, $in, $nin,
// $and, $or. A nil or empty filter matches everything.
func matchesFilter(metadata map[string]any, where Filter) bool {
	if len(where) == 0 {
		return true
	}
	for key, want := range where {
		switch key {
		case OpAnd:
			subs, ok := want.([]Filter)
			if !ok {
				continue
			}
			for _, sub := range subs {
				if !matchesFilter(metadata, sub) {
					return false
				}
			}
		case OpOr:
			subs, ok := want.([]Filter)
			if !ok {
				continue
			}
			any := false
			for _, sub := range subs {
				if matchesFilter(metadata, sub) {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		default:
			if !matchesField(metadata[key], want) {
				return false
			}
		}
	}
	return true
}

func matchesField(have, want any) bool {
	if f, ok := want.(Filter); ok {
		want = map[string]any(f)
	}
	switch w := want.(type) {
	case map[string]any:
		for op, v := range w {
			switch op {
			case OpEq:
				if have != v {
					return false
				}
			case OpNe:
				if have == v {
					return false
				}
			case OpIn:
				vals, _ := v.([]any)
				found := false
				for _, candidate := range vals {
					if have == candidate {
						found = true
						break
					}
				}
				if !found {
					return false
				}
			case OpNin:
				vals, _ := v.([]any)
				for _, candidate := range vals {
					if have == candidate {
						return false
					}
				}
			}
		}
		return true
	default:
		return have == want
	}
}
