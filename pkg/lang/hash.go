package lang

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
)

// Hash is the content address of a definition: a SHA-256 digest of its
// canonical tree, folded Merkle-style over the hashes of everything the
// tree references. Equal hashes are taken to mean equal canonical trees.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the abbreviated display form used in command output.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:4])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("bad hash %q: %v", s, err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("bad hash %q: want %d bytes; got %d", s, len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Node tags. The tag is folded into every node hash, so two nodes of
// different kinds can never collide even with identical children.
const (
	tagInt byte = iota + 1
	tagString
	tagBool
	tagLocal
	tagRef
	tagBuiltin
	tagGroupRef
	tagLambda
	tagCall
	tagRecord
	tagMember
	tagLet
	tagIf

	tagTypeInt
	tagTypeString
	tagTypeBool
	tagTypeRecord
	tagTypeFunc
	tagTypeVar
	tagTypeUnknown

	tagGroupDigest
	tagGroupMember
	tagTypeDecl
)

// hashNode combines a node's tag, payload, and child hashes into one
// digest. Payload and child list are length-prefixed so variable-width
// payloads can't alias child boundaries.
func hashNode(tag byte, payload []byte, children ...Hash) Hash {
	hasher := sha256.New()
	var lenBuf [4]byte

	hasher.Write([]byte{tag})
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	hasher.Write(lenBuf[:])
	hasher.Write(payload)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(children)))
	hasher.Write(lenBuf[:])
	for _, child := range children {
		hasher.Write(child[:])
	}

	var out Hash
	hasher.Sum(out[:0])
	return out
}

// ExprHash computes the Merkle hash of a canonical tree. It fails on
// surface-only nodes (unresolved variables), which should never survive
// canonicalization.
func ExprHash(e Expr) (Hash, error) {
	switch te := e.(type) {
	case *EIntLit:
		var payload [8]byte
		binary.BigEndian.PutUint64(payload[:], uint64(int64(*te)))
		return hashNode(tagInt, payload[:]), nil
	case *EStringLit:
		return hashNode(tagString, []byte(*te)), nil
	case *EBoolLit:
		if bool(*te) {
			return hashNode(tagBool, []byte{1}), nil
		}
		return hashNode(tagBool, []byte{0}), nil
	case *ELocal:
		var payload [8]byte
		binary.BigEndian.PutUint32(payload[:4], uint32(te.up))
		binary.BigEndian.PutUint32(payload[4:], uint32(te.idx))
		return hashNode(tagLocal, payload[:]), nil
	case *ERef:
		// The referenced definition contributes its own hash; its
		// content is never re-hashed here.
		return hashNode(tagRef, nil, te.hash), nil
	case *EBuiltin:
		return hashNode(tagBuiltin, []byte(te.name)), nil
	case *EGroupRef:
		var payload [4]byte
		binary.BigEndian.PutUint32(payload[:], uint32(te.idx))
		return hashNode(tagGroupRef, payload[:]), nil
	case *ELambda:
		children := make([]Hash, 0, len(te.params)+1)
		for _, param := range te.params {
			children = append(children, paramTypeHash(param.Typ))
		}
		bodyHash, err := ExprHash(te.body)
		if err != nil {
			return Hash{}, err
		}
		children = append(children, bodyHash)
		var payload [4]byte
		binary.BigEndian.PutUint32(payload[:], uint32(len(te.params)))
		return hashNode(tagLambda, payload[:], children...), nil
	case *ECall:
		children := make([]Hash, 0, len(te.args)+1)
		fnHash, err := ExprHash(te.fn)
		if err != nil {
			return Hash{}, err
		}
		children = append(children, fnHash)
		for _, arg := range te.args {
			argHash, err := ExprHash(arg)
			if err != nil {
				return Hash{}, err
			}
			children = append(children, argHash)
		}
		return hashNode(tagCall, nil, children...), nil
	case *ERecordLit:
		keys := te.sortedKeys()
		children := make([]Hash, len(keys))
		payload := make([]byte, 0, 16)
		for idx, key := range keys {
			childHash, err := ExprHash(te.exprs[key])
			if err != nil {
				return Hash{}, err
			}
			children[idx] = childHash
			payload = append(payload, key...)
			payload = append(payload, 0)
		}
		return hashNode(tagRecord, payload, children...), nil
	case *EMemberAccess:
		recordHash, err := ExprHash(te.record)
		if err != nil {
			return Hash{}, err
		}
		return hashNode(tagMember, []byte(te.member), recordHash), nil
	case *ELet:
		boundHash, err := ExprHash(te.bound)
		if err != nil {
			return Hash{}, err
		}
		bodyHash, err := ExprHash(te.body)
		if err != nil {
			return Hash{}, err
		}
		return hashNode(tagLet, nil, boundHash, bodyHash), nil
	case *EIf:
		condHash, err := ExprHash(te.cond)
		if err != nil {
			return Hash{}, err
		}
		thenHash, err := ExprHash(te.then)
		if err != nil {
			return Hash{}, err
		}
		elseHash, err := ExprHash(te.els)
		if err != nil {
			return Hash{}, err
		}
		return hashNode(tagIf, nil, condHash, thenHash, elseHash), nil
	case *EVar:
		return Hash{}, &UnresolvedReference{Name: te.name}
	}
	return Hash{}, fmt.Errorf("can't hash %T", e)
}

// paramTypeHash hashes a parameter annotation; unannotated parameters
// get a fixed placeholder so annotation presence is part of the hash.
func paramTypeHash(t Type) Hash {
	if t == nil {
		return hashNode(tagTypeUnknown, nil)
	}
	return TypeHash(t)
}

// TypeHash computes the structural hash of a type.
func TypeHash(t Type) Hash {
	switch tt := t.(type) {
	case *tInt:
		return hashNode(tagTypeInt, nil)
	case *tString:
		return hashNode(tagTypeString, nil)
	case *tBool:
		return hashNode(tagTypeBool, nil)
	case *TRecord:
		keys := make([]string, 0, len(tt.types))
		for k := range tt.types {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		children := make([]Hash, len(keys))
		payload := make([]byte, 0, 16)
		for idx, key := range keys {
			children[idx] = TypeHash(tt.types[key])
			payload = append(payload, key...)
			payload = append(payload, 0)
		}
		return hashNode(tagTypeRecord, payload, children...)
	case *tFunction:
		children := make([]Hash, 0, len(tt.params)+1)
		for _, param := range tt.params {
			children = append(children, paramTypeHash(param.Typ))
		}
		children = append(children, TypeHash(tt.retType))
		return hashNode(tagTypeFunc, nil, children...)
	case *tVar:
		return hashNode(tagTypeVar, []byte(*tt))
	}
	panic(fmt.Sprintf("can't hash type %T", t))
}

// TypeDeclHash is the definition hash of a stored type declaration.
func TypeDeclHash(t Type) Hash {
	return hashNode(tagTypeDecl, nil, TypeHash(t))
}

// GroupDigest hashes the members of a mutually recursive group as one
// ordered tuple. Members must be canonical, with in-group references
// represented as EGroupRef nodes; every member hash below commits to the
// digest, so each is bit-for-bit dependent on every other member.
func GroupDigest(members []Expr) (Hash, error) {
	children := make([]Hash, len(members))
	for idx, member := range members {
		memberHash, err := ExprHash(member)
		if err != nil {
			return Hash{}, err
		}
		children[idx] = memberHash
	}
	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], uint32(len(members)))
	return hashNode(tagGroupDigest, payload[:], children...), nil
}

// GroupMemberHash derives the exposed hash for one member of a group.
func GroupMemberHash(digest Hash, idx int) Hash {
	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], uint32(idx))
	return hashNode(tagGroupMember, payload[:], digest)
}
