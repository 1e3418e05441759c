package vibe

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
	clog "github.com/mizchi/vibe-lang-sub001/pkg/log"
	"github.com/mizchi/vibe-lang-sub001/pkg/parse"
)

// Session is one interactive conversation with a codebase: a log of
// accepted inputs and the set of edits not yet propagated by `update`.
type Session struct {
	id       string
	codebase *Codebase

	mu        sync.Mutex
	namespace string
	entries   []*SessionEntry
	edits     map[QualifiedName]*Edit
	nextIndex int

	ctx context.Context
}

// SessionEntry is one accepted input, or one binding of a multi-binding
// input. Name is empty for bare expressions.
type SessionEntry struct {
	Index int
	Input string
	Hash  lang.Hash
	Name  string
}

// Edit records a rebind that has not been committed: the registry still
// resolves the name to OldHash until `update` binds NewHash and
// propagates through the old hash's dependents.
type Edit struct {
	Namespace string
	Name      string
	OldHash   lang.Hash
	NewHash   lang.Hash
}

func (cb *Codebase) NewSession() *Session {
	id := uuid.New().String()
	return &Session{
		id:        id,
		codebase:  cb,
		namespace: DefaultNamespace,
		edits:     map[QualifiedName]*Edit{},
		ctx:       context.WithValue(cb.ctx, clog.SessionIDKey, id),
	}
}

func (s *Session) Ctx() context.Context {
	return s.ctx
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Namespace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namespace
}

// AddOutcome describes one definition produced by an input.
type AddOutcome struct {
	Name     string
	Hash     lang.Hash
	Type     lang.Type
	Value    lang.Value // bare expressions only
	Replaced *lang.Hash // prior binding, when the name was rebound
}

type AddResult struct {
	IsTypeDecl bool
	Outcomes   []*AddOutcome
}

// Add parses an input, canonicalizes and stores the definitions it
// produces, type checks them, binds their names, and evaluates bare
// expressions. Named bindings in one input are split into strongly
// connected components: singletons become plain terms, everything else
// becomes a recursive group.
func (s *Session) Add(ctx context.Context, input string) (*AddResult, error) {
	startTime := time.Now()
	defer func() {
		s.codebase.metrics.addLatency.Observe(float64(time.Since(startTime).Nanoseconds()))
	}()

	parsed, err := parse.Parse(input)
	if err != nil {
		return nil, &parseError{error: err}
	}
	if parsed.TypeDecl != nil {
		return s.addTypeDecl(input, parsed.TypeDecl)
	}
	return s.addBindings(ctx, input, parsed.Bindings)
}

func (s *Session) addTypeDecl(input string, decl *parse.TypeDecl) (*AddResult, error) {
	typ, err := decl.Type.ToType()
	if err != nil {
		return nil, err
	}
	def, err := s.codebase.StoreType(typ)
	if err != nil {
		return nil, err
	}
	outcome, err := s.bindAndLog(input, decl.Name, def.Hash)
	if err != nil {
		return nil, err
	}
	outcome.Type = typ
	return &AddResult{IsTypeDecl: true, Outcomes: []*AddOutcome{outcome}}, nil
}

func (s *Session) addBindings(
	ctx context.Context,
	input string,
	bindings []*parse.Binding,
) (*AddResult, error) {
	surface := make([]lang.Expr, len(bindings))
	for idx, binding := range bindings {
		expr, err := binding.Expr.ToExpr(s.codebase.ResolvePrefix)
		if err != nil {
			return nil, err
		}
		surface[idx] = expr
	}

	// Only named bindings participate in the in-input reference graph.
	nameToIdx := map[string]int{}
	var named []int
	for idx, binding := range bindings {
		if binding.Name != "" {
			nameToIdx[binding.Name] = idx
			named = append(named, idx)
		}
	}

	edges := map[int][]int{}
	for _, idx := range named {
		for _, free := range lang.FreeVars(surface[idx]) {
			if target, ok := nameToIdx[free]; ok {
				edges[idx] = append(edges[idx], target)
			}
		}
	}

	// storedNames maps in-input names to their hashes as components get
	// stored, so later components resolve against them.
	storedNames := map[string]lang.Hash{}
	result := &AddResult{}

	for _, component := range stronglyConnected(named, edges) {
		outcomes, err := s.addComponent(ctx, input, bindings, surface, component, edges, storedNames)
		if err != nil {
			return nil, err
		}
		result.Outcomes = append(result.Outcomes, outcomes...)
	}

	// Bare expressions go last so they can reference every binding of
	// the input.
	for idx, binding := range bindings {
		if binding.Name != "" {
			continue
		}
		outcome, err := s.addBareExpr(ctx, input, surface[idx], storedNames)
		if err != nil {
			return nil, err
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result, nil
}

// resolver builds the canonicalization resolver: in-input stored names
// first, then the session namespace, then group siblings (when member
// indexes are given).
func (s *Session) resolver(
	storedNames map[string]lang.Hash,
	memberIdx map[string]int,
) lang.Resolver {
	return func(name string) *lang.Resolved {
		if memberIdx != nil {
			if idx, ok := memberIdx[name]; ok {
				member := idx
				return &lang.Resolved{Member: &member}
			}
		}
		if hash, ok := storedNames[name]; ok {
			h := hash
			return &lang.Resolved{Global: &h}
		}
		if hash, err := s.codebase.Resolve(s.Namespace(), name); err == nil {
			h := hash
			return &lang.Resolved{Global: &h}
		}
		return nil
	}
}

func (s *Session) addComponent(
	ctx context.Context,
	input string,
	bindings []*parse.Binding,
	surface []lang.Expr,
	component []int,
	edges map[int][]int,
	storedNames map[string]lang.Hash,
) ([]*AddOutcome, error) {
	if len(component) == 1 && !selfReferential(component[0], edges) {
		return s.addTerm(ctx, input, bindings[component[0]].Name, surface[component[0]], storedNames)
	}
	return s.addGroup(ctx, input, bindings, surface, component, storedNames)
}

func (s *Session) addTerm(
	ctx context.Context,
	input string,
	name string,
	expr lang.Expr,
	storedNames map[string]lang.Hash,
) ([]*AddOutcome, error) {
	canonical, err := lang.Canonicalize(expr, s.resolver(storedNames, nil))
	if err != nil {
		return nil, err
	}
	def, err := s.codebase.StoreTerm(canonical)
	if err != nil {
		return nil, err
	}
	typ, err := s.codebase.TypeOf(ctx, def.Hash)
	if err != nil {
		return nil, err
	}
	outcome, err := s.bindAndLog(input, name, def.Hash)
	if err != nil {
		return nil, err
	}
	outcome.Type = typ
	storedNames[name] = def.Hash
	return []*AddOutcome{outcome}, nil
}

func (s *Session) addGroup(
	ctx context.Context,
	input string,
	bindings []*parse.Binding,
	surface []lang.Expr,
	component []int,
	storedNames map[string]lang.Hash,
) ([]*AddOutcome, error) {
	// Member order is lexicographic by name; the order is part of the
	// group's identity.
	sort.Slice(component, func(i, j int) bool {
		return bindings[component[i]].Name < bindings[component[j]].Name
	})
	memberIdx := map[string]int{}
	for pos, idx := range component {
		memberIdx[bindings[idx].Name] = pos
	}

	members := make([]lang.Expr, len(component))
	for pos, idx := range component {
		canonical, err := lang.Canonicalize(surface[idx], s.resolver(storedNames, memberIdx))
		if err != nil {
			return nil, err
		}
		members[pos] = canonical
	}

	defs, err := s.codebase.StoreGroup(members)
	if err != nil {
		return nil, err
	}

	outcomes := make([]*AddOutcome, len(component))
	for pos, idx := range component {
		name := bindings[idx].Name
		typ, err := s.codebase.TypeOf(ctx, defs[pos].Hash)
		if err != nil {
			return nil, err
		}
		outcome, err := s.bindAndLog(input, name, defs[pos].Hash)
		if err != nil {
			return nil, err
		}
		outcome.Type = typ
		storedNames[name] = defs[pos].Hash
		outcomes[pos] = outcome
	}
	return outcomes, nil
}

func (s *Session) addBareExpr(
	ctx context.Context,
	input string,
	expr lang.Expr,
	storedNames map[string]lang.Hash,
) (*AddOutcome, error) {
	canonical, err := lang.Canonicalize(expr, s.resolver(storedNames, nil))
	if err != nil {
		return nil, err
	}
	def, err := s.codebase.StoreTerm(canonical)
	if err != nil {
		return nil, err
	}
	typ, err := s.codebase.TypeOf(ctx, def.Hash)
	if err != nil {
		return nil, err
	}
	startTime := time.Now()
	val, err := s.codebase.Eval(ctx, def.Hash)
	s.codebase.metrics.evalLatency.Observe(float64(time.Since(startTime).Nanoseconds()))
	if err != nil {
		return nil, err
	}
	outcome, err := s.bindAndLog(input, "", def.Hash)
	if err != nil {
		return nil, err
	}
	outcome.Type = typ
	outcome.Value = val
	return outcome, nil
}

// bindAndLog binds the name (when given) and appends a session entry.
// A name that already resolves to a different hash is not rebound yet:
// the rebind becomes a pending edit, committed by `update`, so the
// registry keeps showing the hash existing dependents were built
// against.
func (s *Session) bindAndLog(input string, name string, hash lang.Hash) (*AddOutcome, error) {
	outcome := &AddOutcome{Name: name, Hash: hash}
	if name != "" {
		namespace := s.Namespace()
		prev, err := s.codebase.Resolve(namespace, name)
		switch {
		case err == nil && prev != hash:
			prevCopy := prev
			outcome.Replaced = &prevCopy
			s.noteEdit(namespace, name, prev, hash)
		case err == nil:
			// Re-entering the bound content restores the registry's
			// view; any pending edit for the name is moot.
			s.dropEdit(namespace, name)
		default:
			if _, _, err := s.codebase.Bind(namespace, name, hash); err != nil {
				return nil, err
			}
		}
	}
	s.mu.Lock()
	s.entries = append(s.entries, &SessionEntry{
		Index: s.nextIndex,
		Input: input,
		Hash:  hash,
		Name:  name,
	})
	s.nextIndex++
	s.mu.Unlock()
	return outcome, nil
}

// BindName implements the `name <hash-prefix> <name>` operation.
func (s *Session) BindName(prefix string, name string) (*AddOutcome, error) {
	hash, err := s.codebase.ResolvePrefix(prefix)
	if err != nil {
		return nil, err
	}
	return s.bindAndLog("name #"+prefix+" "+name, name, hash)
}

func (s *Session) noteEdit(namespace string, name string, oldHash lang.Hash, newHash lang.Hash) {
	qn := QualifiedName{Namespace: namespace, Name: name}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.edits[qn]; ok {
		// Several rebinds before one update: propagate from the
		// original old hash to the latest new one.
		existing.NewHash = newHash
		return
	}
	s.edits[qn] = &Edit{
		Namespace: namespace,
		Name:      name,
		OldHash:   oldHash,
		NewHash:   newHash,
	}
}

func (s *Session) dropEdit(namespace string, name string) {
	qn := QualifiedName{Namespace: namespace, Name: name}
	s.mu.Lock()
	delete(s.edits, qn)
	s.mu.Unlock()
}

// Edits returns the pending edits, sorted by name.
func (s *Session) Edits() []*Edit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedEditsLocked()
}

func (s *Session) sortedEditsLocked() []*Edit {
	out := make([]*Edit, 0, len(s.edits))
	for _, edit := range s.edits {
		out = append(out, edit)
	}
	sort.Slice(out, func(i, j int) bool {
		return qualify(out[i].Namespace, out[i].Name) < qualify(out[j].Namespace, out[j].Name)
	})
	return out
}

// takeEdits removes and returns the pending edits.
func (s *Session) takeEdits() []*Edit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sortedEditsLocked()
	s.edits = map[QualifiedName]*Edit{}
	return out
}

// Reset discards the pending edits without propagating them.
func (s *Session) Reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.edits)
	s.edits = map[QualifiedName]*Edit{}
	return n
}

// Entries returns the session log, oldest first.
func (s *Session) Entries() []*SessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*SessionEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func selfReferential(idx int, edges map[int][]int) bool {
	for _, target := range edges[idx] {
		if target == idx {
			return true
		}
	}
	return false
}

// stronglyConnected returns the strongly connected components of the
// in-input reference graph, dependencies before dependents (Tarjan's
// emission order).
func stronglyConnected(nodes []int, edges map[int][]int) [][]int {
	t := &tarjanState{
		edges:   edges,
		index:   map[int]int{},
		lowLink: map[int]int{},
		onStack: map[int]bool{},
	}
	for _, node := range nodes {
		if _, seen := t.index[node]; !seen {
			t.visit(node)
		}
	}
	return t.components
}

type tarjanState struct {
	edges      map[int][]int
	counter    int
	index      map[int]int
	lowLink    map[int]int
	stack      []int
	onStack    map[int]bool
	components [][]int
}

func (t *tarjanState) visit(node int) {
	t.index[node] = t.counter
	t.lowLink[node] = t.counter
	t.counter++
	t.stack = append(t.stack, node)
	t.onStack[node] = true

	for _, target := range t.edges[node] {
		if _, seen := t.index[target]; !seen {
			t.visit(target)
			if t.lowLink[target] < t.lowLink[node] {
				t.lowLink[node] = t.lowLink[target]
			}
		} else if t.onStack[target] && t.index[target] < t.lowLink[node] {
			t.lowLink[node] = t.index[target]
		}
	}

	if t.lowLink[node] == t.index[node] {
		var component []int
		for {
			top := t.stack[len(t.stack)-1]
			t.stack = t.stack[:len(t.stack)-1]
			t.onStack[top] = false
			component = append(component, top)
			if top == node {
				break
			}
		}
		t.components = append(t.components, component)
	}
}
