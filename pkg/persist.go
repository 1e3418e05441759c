package vibe

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
)

var (
	definitionsBucket = []byte("definitions")
	namesBucket       = []byte("names")
	nameHistoryBucket = []byte("name_history")
)

// load reads the whole data file into the in-memory store, graph, and
// registry. Called once at open; afterwards memory is the source of
// truth and bolt trails behind at commit boundaries.
func (cb *Codebase) load() error {
	return cb.boltDB.Update(func(tx *bolt.Tx) error {
		defs, err := tx.CreateBucketIfNotExists(definitionsBucket)
		if err != nil {
			return err
		}
		names, err := tx.CreateBucketIfNotExists(namesBucket)
		if err != nil {
			return err
		}
		history, err := tx.CreateBucketIfNotExists(nameHistoryBucket)
		if err != nil {
			return err
		}

		if err := defs.ForEach(func(k []byte, v []byte) error {
			def, err := decodeDefinition(k, v)
			if err != nil {
				return errors.Wrapf(err, "loading definition %x", k)
			}
			cb.store.insertLoaded(def)
			cb.graph.register(def)
			return nil
		}); err != nil {
			return err
		}

		if err := names.ForEach(func(k []byte, v []byte) error {
			hash, err := hashFromBytes(v)
			if err != nil {
				return errors.Wrapf(err, "loading binding %s", k)
			}
			namespace, name := splitQualified(string(k))
			cb.registry.bind(namespace, name, hash)
			return nil
		}); err != nil {
			return err
		}

		return history.ForEach(func(k []byte, v []byte) error {
			hashes, err := decodeHashList(v)
			if err != nil {
				return errors.Wrapf(err, "loading history for %s", k)
			}
			namespace, name := splitQualified(string(k))
			cb.registry.loadHistory(namespace, name, hashes)
			return nil
		})
	})
}

func (cb *Codebase) persistDefinitions(defs []*Definition) error {
	if cb.boltDB == nil {
		return nil
	}
	startTime := time.Now()
	err := cb.boltDB.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(definitionsBucket)
		for _, def := range defs {
			encoded, err := encodeDefinition(def)
			if err != nil {
				return errors.Wrapf(err, "encoding #%s", def.Hash.Short())
			}
			if err := bucket.Put(def.Hash[:], encoded); err != nil {
				return err
			}
		}
		return nil
	})
	cb.metrics.persistLatency.Observe(float64(time.Since(startTime).Nanoseconds()))
	return errors.Wrap(err, "persisting definitions")
}

func (cb *Codebase) persistBinding(namespace string, name string, hash lang.Hash) error {
	if cb.boltDB == nil {
		return nil
	}
	key := []byte(qualify(namespace, name))
	hist := cb.registry.historyOf(namespace, name)
	err := cb.boltDB.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(namesBucket).Put(key, hash[:]); err != nil {
			return err
		}
		return tx.Bucket(nameHistoryBucket).Put(key, encodeHashList(hist))
	})
	return errors.Wrapf(err, "persisting binding %s", key)
}

// Definition record layout: a kind byte, then kind-specific fields.
// Group members carry their digest, index, and the full member hash
// list ahead of the tree. Dependency edges are recomputed from the tree
// at load time.

func encodeDefinition(def *Definition) ([]byte, error) {
	out := []byte{byte(def.Kind)}
	switch def.Kind {
	case KindTerm:
		tree, err := lang.Encode(def.Tree)
		if err != nil {
			return nil, err
		}
		return append(out, tree...), nil
	case KindType:
		typ, err := lang.EncodeType(def.Type)
		if err != nil {
			return nil, err
		}
		return append(out, typ...), nil
	case KindGroup:
		out = append(out, def.GroupDigest[:]...)
		out = appendUint32(out, uint32(def.GroupIndex))
		out = appendUint32(out, uint32(len(def.GroupMembers)))
		for _, member := range def.GroupMembers {
			out = append(out, member[:]...)
		}
		tree, err := lang.Encode(def.Tree)
		if err != nil {
			return nil, err
		}
		return append(out, tree...), nil
	default:
		return nil, fmt.Errorf("unencodable definition kind %d", int(def.Kind))
	}
}

func decodeDefinition(key []byte, data []byte) (*Definition, error) {
	hash, err := hashFromBytes(key)
	if err != nil {
		return nil, err
	}
	if len(data) < 1 {
		return nil, fmt.Errorf("empty definition record")
	}
	kind := DefKind(data[0])
	data = data[1:]

	switch kind {
	case KindTerm:
		tree, err := lang.Decode(data)
		if err != nil {
			return nil, err
		}
		return &Definition{
			Hash: hash,
			Kind: KindTerm,
			Tree: tree,
			Deps: lang.Refs(tree),
		}, nil
	case KindType:
		typ, err := lang.DecodeType(data)
		if err != nil {
			return nil, err
		}
		return &Definition{
			Hash: hash,
			Kind: KindType,
			Type: typ,
		}, nil
	case KindGroup:
		if len(data) < 32+4+4 {
			return nil, fmt.Errorf("truncated group record")
		}
		var digest lang.Hash
		copy(digest[:], data[:32])
		data = data[32:]
		index := binary.BigEndian.Uint32(data)
		count := binary.BigEndian.Uint32(data[4:])
		data = data[8:]
		if len(data) < int(count)*32 {
			return nil, fmt.Errorf("truncated group member list")
		}
		members := make([]lang.Hash, count)
		for idx := range members {
			copy(members[idx][:], data[:32])
			data = data[32:]
		}
		tree, err := lang.Decode(data)
		if err != nil {
			return nil, err
		}
		return &Definition{
			Hash:         hash,
			Kind:         KindGroup,
			Tree:         tree,
			Deps:         lang.Refs(tree),
			GroupDigest:  digest,
			GroupIndex:   int(index),
			GroupMembers: members,
		}, nil
	default:
		return nil, fmt.Errorf("unknown definition kind %d", int(kind))
	}
}

func encodeHashList(hashes []lang.Hash) []byte {
	out := appendUint32(nil, uint32(len(hashes)))
	for _, h := range hashes {
		out = append(out, h[:]...)
	}
	return out
}

func decodeHashList(data []byte) ([]lang.Hash, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("truncated hash list")
	}
	count := binary.BigEndian.Uint32(data)
	data = data[4:]
	if len(data) != int(count)*32 {
		return nil, fmt.Errorf("hash list length mismatch")
	}
	out := make([]lang.Hash, count)
	for idx := range out {
		copy(out[idx][:], data[:32])
		data = data[32:]
	}
	return out, nil
}

func appendUint32(out []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(out, buf[:]...)
}

func hashFromBytes(data []byte) (lang.Hash, error) {
	var hash lang.Hash
	if len(data) != len(hash) {
		return hash, fmt.Errorf("expected %d hash bytes; got %d", len(hash), len(data))
	}
	copy(hash[:], data)
	return hash, nil
}
