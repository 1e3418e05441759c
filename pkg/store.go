package vibe

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
)

type DefKind int

const (
	// KindTerm is a single canonicalized expression.
	KindTerm DefKind = iota
	// KindType is a named structural type declaration.
	KindType
	// KindGroup is one member of a mutually recursive group.
	KindGroup
)

func (k DefKind) String() string {
	switch k {
	case KindTerm:
		return "term"
	case KindType:
		return "type"
	case KindGroup:
		return "group member"
	default:
		return fmt.Sprintf("unknown kind %d", int(k))
	}
}

// Definition is one immutable entry of the store. Once inserted under
// its hash it never changes; edits produce new definitions under new
// hashes.
type Definition struct {
	Hash lang.Hash
	Kind DefKind

	// Tree is the stored canonical tree (terms and group members).
	Tree lang.Expr
	// Type is the declared type (KindType only).
	Type lang.Type

	// Deps are the direct references of Tree, sorted. For a group
	// member this includes its sibling hashes.
	Deps []lang.Hash

	// Group metadata (KindGroup only).
	GroupDigest  lang.Hash
	GroupIndex   int
	GroupMembers []lang.Hash
}

// definitionStore is the append-only in-memory definition index.
// Inserting the same content twice is a no-op returning the existing
// entry.
type definitionStore struct {
	mu     sync.RWMutex
	defs   map[lang.Hash]*Definition
	sorted []string // hex of every stored hash, for prefix lookup
}

func newDefinitionStore() *definitionStore {
	return &definitionStore{
		defs: map[lang.Hash]*Definition{},
	}
}

// insertTerm stores a canonicalized expression. The bool reports
// whether the definition is new.
func (s *definitionStore) insertTerm(tree lang.Expr) (*Definition, bool, error) {
	hash, err := lang.ExprHash(tree)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.defs[hash]; ok {
		return existing, false, nil
	}
	def := &Definition{
		Hash: hash,
		Kind: KindTerm,
		Tree: tree,
		Deps: lang.Refs(tree),
	}
	s.addLocked(def)
	return def, true, nil
}

// insertType stores a type declaration.
func (s *definitionStore) insertType(typ lang.Type) (*Definition, bool, error) {
	hash := lang.TypeDeclHash(typ)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.defs[hash]; ok {
		return existing, false, nil
	}
	def := &Definition{
		Hash: hash,
		Kind: KindType,
		Type: typ,
	}
	s.addLocked(def)
	return def, true, nil
}

// insertGroup stores the members of a mutually recursive group. The
// members arrive canonicalized with group-ref placeholders standing in
// for sibling references; the stored trees carry the materialized
// member hashes instead. Definitions come back in member order.
func (s *definitionStore) insertGroup(members []lang.Expr) ([]*Definition, bool, error) {
	digest, err := lang.GroupDigest(members)
	if err != nil {
		return nil, false, err
	}
	memberHashes := make([]lang.Hash, len(members))
	for idx := range members {
		memberHashes[idx] = lang.GroupMemberHash(digest, idx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.defs[memberHashes[0]]; ok {
		defs := make([]*Definition, len(memberHashes))
		defs[0] = existing
		for idx := 1; idx < len(memberHashes); idx++ {
			defs[idx] = s.defs[memberHashes[idx]]
		}
		return defs, false, nil
	}

	defs := make([]*Definition, len(members))
	for idx, member := range members {
		stored := lang.GroupRefsToRefs(member, memberHashes)
		def := &Definition{
			Hash:         memberHashes[idx],
			Kind:         KindGroup,
			Tree:         stored,
			Deps:         lang.Refs(stored),
			GroupDigest:  digest,
			GroupIndex:   idx,
			GroupMembers: memberHashes,
		}
		s.addLocked(def)
		defs[idx] = def
	}
	return defs, true, nil
}

// insertLoaded re-adds a definition decoded from disk.
func (s *definitionStore) insertLoaded(def *Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[def.Hash]; ok {
		return
	}
	s.addLocked(def)
}

func (s *definitionStore) addLocked(def *Definition) {
	s.defs[def.Hash] = def
	hex := def.Hash.String()
	at := sort.SearchStrings(s.sorted, hex)
	s.sorted = append(s.sorted, "")
	copy(s.sorted[at+1:], s.sorted[at:])
	s.sorted[at] = hex
}

func (s *definitionStore) lookup(hash lang.Hash) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[hash]
	if !ok {
		return nil, &NotFound{Hash: hash}
	}
	return def, nil
}

func (s *definitionStore) contains(hash lang.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.defs[hash]
	return ok
}

// resolvePrefix resolves a hex hash prefix to the unique stored hash
// starting with it. More than one match is an error; a prefix should
// name exactly one definition.
func (s *definitionStore) resolvePrefix(prefix string) (lang.Hash, error) {
	lowered := strings.ToLower(prefix)
	if lowered == "" || strings.Trim(lowered, "0123456789abcdef") != "" {
		return lang.Hash{}, fmt.Errorf("invalid hash prefix: %#v", prefix)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	at := sort.SearchStrings(s.sorted, lowered)
	var matches []lang.Hash
	for ; at < len(s.sorted) && strings.HasPrefix(s.sorted[at], lowered); at++ {
		hash, err := lang.ParseHash(s.sorted[at])
		if err != nil {
			return lang.Hash{}, err
		}
		matches = append(matches, hash)
	}
	switch len(matches) {
	case 0:
		return lang.Hash{}, &NoSuchPrefix{Prefix: lowered}
	case 1:
		return matches[0], nil
	default:
		return lang.Hash{}, &AmbiguousPrefix{Prefix: lowered, Matches: matches}
	}
}

func (s *definitionStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.defs)
}

// each visits every definition in hash order.
func (s *definitionStore) each(f func(def *Definition) error) error {
	s.mu.RLock()
	hexes := make([]string, len(s.sorted))
	copy(hexes, s.sorted)
	s.mu.RUnlock()

	for _, hex := range hexes {
		hash, err := lang.ParseHash(hex)
		if err != nil {
			return err
		}
		s.mu.RLock()
		def := s.defs[hash]
		s.mu.RUnlock()
		if def == nil {
			continue
		}
		if err := f(def); err != nil {
			return err
		}
	}
	return nil
}

func sortHashes(hashes []lang.Hash) {
	sort.Slice(hashes, func(i, j int) bool {
		return bytes.Compare(hashes[i][:], hashes[j][:]) < 0
	})
}
