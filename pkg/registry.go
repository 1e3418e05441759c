package vibe

import (
	"sort"
	"sync"

	"github.com/benbjohnson/immutable"
	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
)

// DefaultNamespace is where the shell and the protocol bind names
// unless told otherwise.
const DefaultNamespace = "main"

// nameHistoryLimit bounds how many prior bindings are remembered per
// (namespace, name).
const nameHistoryLimit = 16

type QualifiedName struct {
	Namespace string
	Name      string
}

func (qn QualifiedName) String() string {
	return qualify(qn.Namespace, qn.Name)
}

// NameBinding is one entry of a registry listing.
type NameBinding struct {
	Namespace string
	Name      string
	Hash      lang.Hash
}

// nameRegistry is the mutable name -> hash mapping over the immutable
// store. Bindings live in an immutable sorted map so listings iterate a
// consistent snapshot while writers rebind concurrently.
type nameRegistry struct {
	mu       sync.RWMutex
	bindings *immutable.SortedMap // qualified name -> lang.Hash
	byHash   map[lang.Hash]map[QualifiedName]struct{}
	history  map[QualifiedName][]lang.Hash // most recent first
}

func newNameRegistry() *nameRegistry {
	return &nameRegistry{
		bindings: immutable.NewSortedMap(nil),
		byHash:   map[lang.Hash]map[QualifiedName]struct{}{},
		history:  map[QualifiedName][]lang.Hash{},
	}
}

// bind points a name at a hash. Rebinding replaces the previous target
// (last bind wins) and pushes it onto the name's history.
func (r *nameRegistry) bind(namespace string, name string, hash lang.Hash) (lang.Hash, bool) {
	qn := QualifiedName{Namespace: namespace, Name: name}

	r.mu.Lock()
	defer r.mu.Unlock()

	var prev lang.Hash
	hadPrev := false
	if existing, ok := r.bindings.Get(qn.String()); ok {
		prev = existing.(lang.Hash)
		hadPrev = true
		if prev == hash {
			return prev, true
		}
		r.dropReverseLocked(prev, qn)
		r.pushHistoryLocked(qn, prev)
	}

	r.bindings = r.bindings.Set(qn.String(), hash)
	names, ok := r.byHash[hash]
	if !ok {
		names = map[QualifiedName]struct{}{}
		r.byHash[hash] = names
	}
	names[qn] = struct{}{}
	return prev, hadPrev
}

func (r *nameRegistry) dropReverseLocked(hash lang.Hash, qn QualifiedName) {
	names := r.byHash[hash]
	delete(names, qn)
	if len(names) == 0 {
		delete(r.byHash, hash)
	}
}

func (r *nameRegistry) pushHistoryLocked(qn QualifiedName, prev lang.Hash) {
	hist := append([]lang.Hash{prev}, r.history[qn]...)
	if len(hist) > nameHistoryLimit {
		hist = hist[:nameHistoryLimit]
	}
	r.history[qn] = hist
}

// loadHistory replaces a name's history wholesale (persistence reload).
func (r *nameRegistry) loadHistory(namespace string, name string, hist []lang.Hash) {
	qn := QualifiedName{Namespace: namespace, Name: name}
	if len(hist) > nameHistoryLimit {
		hist = hist[:nameHistoryLimit]
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[qn] = hist
}

func (r *nameRegistry) resolve(namespace string, name string) (lang.Hash, error) {
	qn := QualifiedName{Namespace: namespace, Name: name}
	r.mu.RLock()
	defer r.mu.RUnlock()
	val, ok := r.bindings.Get(qn.String())
	if !ok {
		return lang.Hash{}, &UnboundName{Namespace: namespace, Name: name}
	}
	return val.(lang.Hash), nil
}

// namesOf returns every name currently bound to a hash, sorted.
func (r *nameRegistry) namesOf(hash lang.Hash) []QualifiedName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]QualifiedName, 0, len(r.byHash[hash]))
	for qn := range r.byHash[hash] {
		out = append(out, qn)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// historyOf returns a name's prior bindings, most recent first.
func (r *nameRegistry) historyOf(namespace string, name string) []lang.Hash {
	qn := QualifiedName{Namespace: namespace, Name: name}
	r.mu.RLock()
	defer r.mu.RUnlock()
	hist := r.history[qn]
	out := make([]lang.Hash, len(hist))
	copy(out, hist)
	return out
}

// list returns all current bindings in name order.
func (r *nameRegistry) list() []NameBinding {
	r.mu.RLock()
	snapshot := r.bindings
	r.mu.RUnlock()

	out := make([]NameBinding, 0, snapshot.Len())
	iter := snapshot.Iterator()
	for !iter.Done() {
		key, val := iter.Next()
		qualified := key.(string)
		namespace, name := splitQualified(qualified)
		out = append(out, NameBinding{
			Namespace: namespace,
			Name:      name,
			Hash:      val.(lang.Hash),
		})
	}
	return out
}

func splitQualified(qualified string) (string, string) {
	for i := len(qualified) - 1; i >= 0; i-- {
		if qualified[i] == '/' {
			return qualified[:i], qualified[i+1:]
		}
	}
	return "", qualified
}
