package vibe

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/boltdb/bolt"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
)

// typeWarmupConcurrency bounds how many definitions are type checked in
// parallel when re-opening a data file.
const typeWarmupConcurrency = 8

// Codebase is the top-level object: the definition store, the
// dependency graph, the name registry, and the derived-result caches,
// optionally persisted to a bolt file.
type Codebase struct {
	store    *definitionStore
	graph    *depGraph
	registry *nameRegistry
	types    *queryCache
	values   *queryCache

	boltDB *bolt.DB // nil when running in memory

	// updateMu serializes update propagation runs.
	updateMu sync.Mutex

	connMu           sync.Mutex
	connections      map[connectionID]*connection
	nextConnectionID int

	ctx     context.Context
	metrics *metrics
}

// NewCodebase opens (or creates) a bolt-backed codebase.
func NewCodebase(dataFile string) (*Codebase, error) {
	boltDB, err := bolt.Open(dataFile, 0600, nil)
	if err != nil {
		return nil, err
	}
	cb := newCodebaseInternal(boltDB)
	if err := cb.load(); err != nil {
		boltDB.Close()
		return nil, err
	}
	cb.warmTypeCache()
	return cb, nil
}

// NewMemCodebase creates a codebase with no persistence. Used by the
// in-process shell mode and most tests.
func NewMemCodebase() *Codebase {
	return newCodebaseInternal(nil)
}

func newCodebaseInternal(boltDB *bolt.DB) *Codebase {
	cb := &Codebase{
		store:       newDefinitionStore(),
		graph:       newDepGraph(),
		registry:    newNameRegistry(),
		types:       newQueryCache("types"),
		values:      newQueryCache("values"),
		boltDB:      boltDB,
		connections: map[connectionID]*connection{},
		ctx:         context.Background(),
	}
	cb.metrics = newMetrics(cb)
	return cb
}

// warmTypeCache type checks every loaded definition up front so that
// interactive queries hit a hot cache. Definitions that fail to check
// are left uncached; the failure resurfaces when they are asked for.
func (cb *Codebase) warmTypeCache() {
	var group errgroup.Group
	sem := make(chan struct{}, typeWarmupConcurrency)
	cb.store.each(func(def *Definition) error {
		hash := def.Hash
		group.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			cb.TypeOf(cb.ctx, hash)
			return nil
		})
		return nil
	})
	group.Wait()
}

func (cb *Codebase) Close() error {
	if cb.boltDB == nil {
		return nil
	}
	return cb.boltDB.Close()
}

// addConnection connects a websocket to the codebase.
func (cb *Codebase) addConnection(wsConn *websocket.Conn) {
	cb.connMu.Lock()
	conn := newConnection(wsConn, cb, cb.nextConnectionID)
	cb.nextConnectionID++
	cb.connections[conn.id] = conn
	cb.connMu.Unlock()
	conn.handleRequests()
}

func (cb *Codebase) removeConn(conn *connection) {
	cb.connMu.Lock()
	delete(cb.connections, conn.id)
	cb.connMu.Unlock()
}

func (cb *Codebase) connectionCount() int {
	cb.connMu.Lock()
	defer cb.connMu.Unlock()
	return len(cb.connections)
}

// StoreTerm stores a canonicalized expression, indexes its dependency
// edges, and persists it.
func (cb *Codebase) StoreTerm(tree lang.Expr) (*Definition, error) {
	def, isNew, err := cb.store.insertTerm(tree)
	if err != nil {
		return nil, err
	}
	if isNew {
		cb.graph.register(def)
		if err := cb.persistDefinitions([]*Definition{def}); err != nil {
			return nil, err
		}
	}
	return def, nil
}

// StoreType stores a type declaration.
func (cb *Codebase) StoreType(typ lang.Type) (*Definition, error) {
	def, isNew, err := cb.store.insertType(typ)
	if err != nil {
		return nil, err
	}
	if isNew {
		cb.graph.register(def)
		if err := cb.persistDefinitions([]*Definition{def}); err != nil {
			return nil, err
		}
	}
	return def, nil
}

// StoreGroup stores the members of a mutually recursive group, in
// member order.
func (cb *Codebase) StoreGroup(members []lang.Expr) ([]*Definition, error) {
	defs, isNew, err := cb.store.insertGroup(members)
	if err != nil {
		return nil, err
	}
	if isNew {
		for _, def := range defs {
			cb.graph.register(def)
		}
		if err := cb.persistDefinitions(defs); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

func (cb *Codebase) Lookup(hash lang.Hash) (*Definition, error) {
	return cb.store.lookup(hash)
}

func (cb *Codebase) ResolvePrefix(prefix string) (lang.Hash, error) {
	return cb.store.resolvePrefix(prefix)
}

// Bind points a name at a hash and persists the binding. The returned
// hash is the previous target, if there was one.
func (cb *Codebase) Bind(namespace string, name string, hash lang.Hash) (lang.Hash, bool, error) {
	if !cb.store.contains(hash) {
		return lang.Hash{}, false, &NotFound{Hash: hash}
	}
	prev, hadPrev := cb.registry.bind(namespace, name, hash)
	if err := cb.persistBinding(namespace, name, hash); err != nil {
		return prev, hadPrev, err
	}
	return prev, hadPrev, nil
}

func (cb *Codebase) Resolve(namespace string, name string) (lang.Hash, error) {
	return cb.registry.resolve(namespace, name)
}

func (cb *Codebase) NamesOf(hash lang.Hash) []QualifiedName {
	return cb.registry.namesOf(hash)
}

func (cb *Codebase) History(namespace string, name string) []lang.Hash {
	return cb.registry.historyOf(namespace, name)
}

func (cb *Codebase) Names() []NameBinding {
	return cb.registry.list()
}

func (cb *Codebase) Dependents(hash lang.Hash) []lang.Hash {
	return cb.graph.dependents(hash)
}

func (cb *Codebase) Dependencies(hash lang.Hash) []lang.Hash {
	return cb.graph.dependencies(hash)
}

// placeholderCounter feeds fresh type variables handed out for group
// members whose check is still in flight.
var placeholderCounter int64

// TypeOf returns the type of a stored definition, memoized.
func (cb *Codebase) TypeOf(ctx context.Context, hash lang.Hash) (lang.Type, error) {
	result, err := cb.types.compute(ctx, hash, func(ctx context.Context) (interface{}, error) {
		def, err := cb.store.lookup(hash)
		if err != nil {
			return nil, err
		}
		if def.Kind == KindType {
			return def.Type, nil
		}
		typ, err := lang.Check(ctx, def.Tree, cb.refTypes)
		if err != nil {
			return nil, &typeCheckFailure{Hash: hash, Err: err}
		}
		return typ, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(lang.Type), nil
}

// refTypes resolves a reference's type during checking. A reference to
// a member of a recursive group whose check is already on the in-flight
// chain gets a fresh type variable instead of recursing; anything else
// goes through the cache.
func (cb *Codebase) refTypes(ctx context.Context, hash lang.Hash) (lang.Type, error) {
	def, err := cb.store.lookup(hash)
	if err != nil {
		return nil, err
	}
	if def.Kind == KindGroup {
		chain, _ := ctx.Value(cacheChainKey{cb.types.name}).(*hashChain)
		for _, member := range def.GroupMembers {
			if chain.contains(member) {
				idx := atomic.AddInt64(&placeholderCounter, 1)
				return lang.NewTVar(fmt.Sprintf("rec%d", idx)), nil
			}
		}
	}
	return cb.TypeOf(ctx, hash)
}

// Eval evaluates a stored definition to a value, memoized.
func (cb *Codebase) Eval(ctx context.Context, hash lang.Hash) (lang.Value, error) {
	result, err := cb.values.compute(ctx, hash, func(ctx context.Context) (interface{}, error) {
		def, err := cb.store.lookup(hash)
		if err != nil {
			return nil, err
		}
		if def.Kind == KindType {
			return nil, &notAValue{Hash: hash}
		}
		return lang.Eval(ctx, def.Tree, cb.refValues)
	})
	if err != nil {
		return nil, err
	}
	return result.(lang.Value), nil
}

func (cb *Codebase) refValues(ctx context.Context, hash lang.Hash) (lang.Value, error) {
	return cb.Eval(ctx, hash)
}
