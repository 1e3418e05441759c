package vibe

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
)

// UpdateStep records one definition (or recursive group) carried
// through an update: its old hash, the hash of the rebuilt definition,
// and the names that were repointed. On failure NewHash is zero and Err
// says why.
type UpdateStep struct {
	OldHash lang.Hash
	NewHash lang.Hash
	Names   []QualifiedName
	Err     error
}

type UpdateResult struct {
	Edits []*Edit
	Steps []*UpdateStep
	Err   error
}

// Update commits the session's pending edits and rewrites every
// transitive dependent of the replaced hashes to reference the new
// ones, in dependency order. A dependent that fails to type check is
// reported and left behind; branches not reaching it still complete.
func (s *Session) Update(ctx context.Context) (*UpdateResult, error) {
	cb := s.codebase
	cb.updateMu.Lock()
	defer cb.updateMu.Unlock()

	startTime := time.Now()
	defer func() {
		cb.metrics.updateLatency.Observe(float64(time.Since(startTime).Nanoseconds()))
	}()

	edits := s.takeEdits()
	result := &UpdateResult{Edits: edits}
	if len(edits) == 0 {
		return result, nil
	}

	// Commit the pending rebinds first; until here the registry still
	// resolved each edited name to its old hash.
	var aggregated *multierror.Error
	repl := map[lang.Hash]lang.Hash{}
	for _, edit := range edits {
		if _, _, err := cb.Bind(edit.Namespace, edit.Name, edit.NewHash); err != nil {
			aggregated = multierror.Append(aggregated, err)
			continue
		}
		if edit.OldHash != edit.NewHash {
			repl[edit.OldHash] = edit.NewHash
		}
	}

	nodes, order := cb.dirtyNodes(repl)
	for _, key := range order {
		step := cb.rebuildNode(ctx, nodes[key], repl)
		if step == nil {
			continue
		}
		result.Steps = append(result.Steps, step)
		if step.Err != nil {
			aggregated = multierror.Append(aggregated, step.Err)
		}
	}
	result.Err = aggregated.ErrorOrNil()
	return result, nil
}

// updateNode is one unit of propagation: a single definition, or a
// whole recursive group (members rebuilt together so the new digest
// covers all of them).
type updateNode struct {
	key    lang.Hash // own hash, or group digest
	hashes []lang.Hash
	defs   []*Definition
}

// dirtyNodes collects every transitive dependent of the replaced
// hashes, collapses recursive groups into single nodes, and returns the
// nodes in dependency order (Kahn's algorithm over the dirty subgraph).
// Hashes the user explicitly replaced are not rebuilt again.
func (cb *Codebase) dirtyNodes(repl map[lang.Hash]lang.Hash) (map[lang.Hash]*updateNode, []lang.Hash) {
	dirty := map[lang.Hash]struct{}{}
	for old := range repl {
		for _, dependent := range cb.graph.transitiveDependents(old) {
			if _, replaced := repl[dependent]; replaced {
				continue
			}
			dirty[dependent] = struct{}{}
		}
	}

	nodes := map[lang.Hash]*updateNode{}
	hashToKey := map[lang.Hash]lang.Hash{}
	for hash := range dirty {
		def, err := cb.store.lookup(hash)
		if err != nil {
			continue
		}
		if def.Kind == KindGroup {
			if _, ok := nodes[def.GroupDigest]; ok {
				continue
			}
			node := &updateNode{key: def.GroupDigest}
			for _, member := range def.GroupMembers {
				memberDef, err := cb.store.lookup(member)
				if err != nil {
					continue
				}
				node.hashes = append(node.hashes, member)
				node.defs = append(node.defs, memberDef)
				hashToKey[member] = node.key
			}
			nodes[node.key] = node
			continue
		}
		node := &updateNode{
			key:    hash,
			hashes: []lang.Hash{hash},
			defs:   []*Definition{def},
		}
		nodes[node.key] = node
		hashToKey[hash] = node.key
	}

	// Edges run dependency -> dependent, restricted to dirty nodes.
	dependents := map[lang.Hash][]lang.Hash{}
	indegree := map[lang.Hash]int{}
	for key, node := range nodes {
		indegree[key] += 0
		seen := map[lang.Hash]struct{}{}
		for _, def := range node.defs {
			for _, dep := range def.Deps {
				depKey, ok := hashToKey[dep]
				if !ok || depKey == key {
					continue
				}
				if _, dup := seen[depKey]; dup {
					continue
				}
				seen[depKey] = struct{}{}
				dependents[depKey] = append(dependents[depKey], key)
				indegree[key]++
			}
		}
	}

	var frontier []lang.Hash
	for key, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, key)
		}
	}
	sortHashes(frontier)

	var order []lang.Hash
	for len(frontier) > 0 {
		key := frontier[0]
		frontier = frontier[1:]
		order = append(order, key)
		var released []lang.Hash
		for _, dependent := range dependents[key] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				released = append(released, dependent)
			}
		}
		sortHashes(released)
		frontier = append(frontier, released...)
	}
	return nodes, order
}

// rebuildNode restores a node against the replacement map. Returns nil
// when none of the node's references changed (all of its changed
// dependencies failed upstream, for instance).
func (cb *Codebase) rebuildNode(
	ctx context.Context,
	node *updateNode,
	repl map[lang.Hash]lang.Hash,
) *UpdateStep {
	if len(node.defs) == 1 && node.defs[0].Kind != KindGroup {
		return cb.rebuildTerm(ctx, node.defs[0], repl)
	}
	return cb.rebuildGroup(ctx, node, repl)
}

func (cb *Codebase) rebuildTerm(
	ctx context.Context,
	def *Definition,
	repl map[lang.Hash]lang.Hash,
) *UpdateStep {
	newTree := lang.ReplaceRefs(def.Tree, repl)
	if newTree == def.Tree {
		return nil
	}
	step := &UpdateStep{OldHash: def.Hash}

	newDef, err := cb.StoreTerm(newTree)
	if err != nil {
		step.Err = &propagationFailure{OldHash: def.Hash, Err: err}
		return step
	}
	if _, err := cb.TypeOf(ctx, newDef.Hash); err != nil {
		step.Err = &propagationFailure{OldHash: def.Hash, Err: err}
		return step
	}
	step.NewHash = newDef.Hash
	step.Names = cb.rebindNames(def.Hash, newDef.Hash, step)
	repl[def.Hash] = newDef.Hash
	return step
}

func (cb *Codebase) rebuildGroup(
	ctx context.Context,
	node *updateNode,
	repl map[lang.Hash]lang.Hash,
) *UpdateStep {
	memberIdx := map[lang.Hash]int{}
	for idx, hash := range node.hashes {
		memberIdx[hash] = idx
	}

	changed := false
	members := make([]lang.Expr, len(node.defs))
	for idx, def := range node.defs {
		replaced := lang.ReplaceRefs(def.Tree, repl)
		if replaced != def.Tree {
			changed = true
		}
		members[idx] = lang.RefsToGroupRefs(replaced, memberIdx)
	}
	if !changed {
		return nil
	}

	step := &UpdateStep{OldHash: node.key}
	newDefs, err := cb.StoreGroup(members)
	if err != nil {
		step.Err = &propagationFailure{OldHash: node.key, Err: err}
		return step
	}
	for _, newDef := range newDefs {
		if _, err := cb.TypeOf(ctx, newDef.Hash); err != nil {
			step.Err = &propagationFailure{OldHash: node.key, Err: err}
			return step
		}
	}
	step.NewHash = newDefs[0].GroupDigest
	for idx, oldHash := range node.hashes {
		step.Names = append(step.Names, cb.rebindNames(oldHash, newDefs[idx].Hash, step)...)
		repl[oldHash] = newDefs[idx].Hash
	}
	return step
}

// rebindNames repoints every name of the old hash at the new one.
func (cb *Codebase) rebindNames(oldHash lang.Hash, newHash lang.Hash, step *UpdateStep) []QualifiedName {
	names := cb.registry.namesOf(oldHash)
	for _, qn := range names {
		if _, _, err := cb.Bind(qn.Namespace, qn.Name, newHash); err != nil && step.Err == nil {
			step.Err = &propagationFailure{OldHash: oldHash, Err: err}
		}
	}
	return names
}
