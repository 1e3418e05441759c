package lang

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// Binary encoding for canonical trees and types, used by the storage
// layer. Unlike the hasher this keeps display hints, so a reloaded tree
// pretty-prints the way it was written. Big-endian, length-prefixed.

func Encode(e Expr) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := encodeExpr(buf, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Decode(data []byte) (Expr, error) {
	r := &decoder{data: data}
	e, err := r.expr()
	if err != nil {
		return nil, err
	}
	if r.pos != len(r.data) {
		return nil, fmt.Errorf("trailing garbage at byte %d", r.pos)
	}
	return e, nil
}

func EncodeType(t Type) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := encodeType(buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeType(data []byte) (Type, error) {
	r := &decoder{data: data}
	t, err := r.typ()
	if err != nil {
		return nil, err
	}
	if r.pos != len(r.data) {
		return nil, fmt.Errorf("trailing garbage at byte %d", r.pos)
	}
	return t, nil
}

// encoding

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func encodeExpr(buf *bytes.Buffer, e Expr) error {
	switch te := e.(type) {
	case *EIntLit:
		buf.WriteByte(tagInt)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(int64(*te)))
		buf.Write(b[:])
	case *EStringLit:
		buf.WriteByte(tagString)
		writeString(buf, string(*te))
	case *EBoolLit:
		buf.WriteByte(tagBool)
		if bool(*te) {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case *ELocal:
		buf.WriteByte(tagLocal)
		writeUint32(buf, uint32(te.up))
		writeUint32(buf, uint32(te.idx))
		writeString(buf, te.hint)
	case *ERef:
		buf.WriteByte(tagRef)
		buf.Write(te.hash[:])
		writeString(buf, te.hint)
	case *EBuiltin:
		buf.WriteByte(tagBuiltin)
		writeString(buf, te.name)
	case *EGroupRef:
		buf.WriteByte(tagGroupRef)
		writeUint32(buf, uint32(te.idx))
		writeString(buf, te.hint)
	case *ELambda:
		buf.WriteByte(tagLambda)
		writeUint32(buf, uint32(len(te.params)))
		for _, param := range te.params {
			writeString(buf, param.Name)
			if param.Typ == nil {
				buf.WriteByte(0)
			} else {
				buf.WriteByte(1)
				if err := encodeType(buf, param.Typ); err != nil {
					return err
				}
			}
		}
		return encodeExpr(buf, te.body)
	case *ECall:
		buf.WriteByte(tagCall)
		if err := encodeExpr(buf, te.fn); err != nil {
			return err
		}
		writeUint32(buf, uint32(len(te.args)))
		for _, arg := range te.args {
			if err := encodeExpr(buf, arg); err != nil {
				return err
			}
		}
	case *ERecordLit:
		buf.WriteByte(tagRecord)
		keys := te.sortedKeys()
		writeUint32(buf, uint32(len(keys)))
		for _, key := range keys {
			writeString(buf, key)
			if err := encodeExpr(buf, te.exprs[key]); err != nil {
				return err
			}
		}
	case *EMemberAccess:
		buf.WriteByte(tagMember)
		if err := encodeExpr(buf, te.record); err != nil {
			return err
		}
		writeString(buf, te.member)
	case *ELet:
		buf.WriteByte(tagLet)
		writeString(buf, te.name)
		if err := encodeExpr(buf, te.bound); err != nil {
			return err
		}
		return encodeExpr(buf, te.body)
	case *EIf:
		buf.WriteByte(tagIf)
		if err := encodeExpr(buf, te.cond); err != nil {
			return err
		}
		if err := encodeExpr(buf, te.then); err != nil {
			return err
		}
		return encodeExpr(buf, te.els)
	default:
		return fmt.Errorf("not encodable: %T", e)
	}
	return nil
}

func encodeType(buf *bytes.Buffer, t Type) error {
	switch tt := t.(type) {
	case *tInt:
		buf.WriteByte(tagTypeInt)
	case *tString:
		buf.WriteByte(tagTypeString)
	case *tBool:
		buf.WriteByte(tagTypeBool)
	case *TRecord:
		buf.WriteByte(tagTypeRecord)
		keys := make([]string, 0, len(tt.types))
		for k := range tt.types {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeUint32(buf, uint32(len(keys)))
		for _, key := range keys {
			writeString(buf, key)
			if err := encodeType(buf, tt.types[key]); err != nil {
				return err
			}
		}
	case *tFunction:
		buf.WriteByte(tagTypeFunc)
		writeUint32(buf, uint32(len(tt.params)))
		for _, param := range tt.params {
			writeString(buf, param.Name)
			if param.Typ == nil {
				buf.WriteByte(0)
			} else {
				buf.WriteByte(1)
				if err := encodeType(buf, param.Typ); err != nil {
					return err
				}
			}
		}
		return encodeType(buf, tt.retType)
	case *tVar:
		buf.WriteByte(tagTypeVar)
		writeString(buf, string(*tt))
	default:
		return fmt.Errorf("not encodable: %T", t)
	}
	return nil
}

// decoding

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) byte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, fmt.Errorf("unexpected end of input at byte %d", d.pos)
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if d.pos+n > len(d.data) {
		return nil, fmt.Errorf("unexpected end of input at byte %d", d.pos)
	}
	out := d.data[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

func (d *decoder) uint32() (uint32, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *decoder) string() (string, error) {
	n, err := d.uint32()
	if err != nil {
		return "", err
	}
	b, err := d.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) expr() (Expr, error) {
	tag, err := d.byte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagInt:
		b, err := d.bytes(8)
		if err != nil {
			return nil, err
		}
		return NewIntLit(int(int64(binary.BigEndian.Uint64(b)))), nil
	case tagString:
		s, err := d.string()
		if err != nil {
			return nil, err
		}
		return NewStringLit(s), nil
	case tagBool:
		b, err := d.byte()
		if err != nil {
			return nil, err
		}
		return NewBoolLit(b == 1), nil
	case tagLocal:
		up, err := d.uint32()
		if err != nil {
			return nil, err
		}
		idx, err := d.uint32()
		if err != nil {
			return nil, err
		}
		hint, err := d.string()
		if err != nil {
			return nil, err
		}
		return NewLocal(int(up), int(idx), hint), nil
	case tagRef:
		hashBytes, err := d.bytes(32)
		if err != nil {
			return nil, err
		}
		var h Hash
		copy(h[:], hashBytes)
		hint, err := d.string()
		if err != nil {
			return nil, err
		}
		return NewRef(h, hint), nil
	case tagBuiltin:
		name, err := d.string()
		if err != nil {
			return nil, err
		}
		return NewBuiltinRef(name), nil
	case tagGroupRef:
		idx, err := d.uint32()
		if err != nil {
			return nil, err
		}
		hint, err := d.string()
		if err != nil {
			return nil, err
		}
		return NewGroupRef(int(idx), hint), nil
	case tagLambda:
		nParams, err := d.uint32()
		if err != nil {
			return nil, err
		}
		params := make([]Param, nParams)
		for idx := range params {
			name, err := d.string()
			if err != nil {
				return nil, err
			}
			hasType, err := d.byte()
			if err != nil {
				return nil, err
			}
			var typ Type
			if hasType == 1 {
				typ, err = d.typ()
				if err != nil {
					return nil, err
				}
			}
			params[idx] = Param{Name: name, Typ: typ}
		}
		body, err := d.expr()
		if err != nil {
			return nil, err
		}
		return NewELambda(params, body), nil
	case tagCall:
		fn, err := d.expr()
		if err != nil {
			return nil, err
		}
		nArgs, err := d.uint32()
		if err != nil {
			return nil, err
		}
		args := make([]Expr, nArgs)
		for idx := range args {
			args[idx], err = d.expr()
			if err != nil {
				return nil, err
			}
		}
		return NewCall(fn, args), nil
	case tagRecord:
		n, err := d.uint32()
		if err != nil {
			return nil, err
		}
		exprs := make(map[string]Expr, n)
		for i := uint32(0); i < n; i++ {
			key, err := d.string()
			if err != nil {
				return nil, err
			}
			sub, err := d.expr()
			if err != nil {
				return nil, err
			}
			exprs[key] = sub
		}
		return NewRecordLit(exprs), nil
	case tagMember:
		record, err := d.expr()
		if err != nil {
			return nil, err
		}
		member, err := d.string()
		if err != nil {
			return nil, err
		}
		return NewMemberAccess(record, member), nil
	case tagLet:
		name, err := d.string()
		if err != nil {
			return nil, err
		}
		bound, err := d.expr()
		if err != nil {
			return nil, err
		}
		body, err := d.expr()
		if err != nil {
			return nil, err
		}
		return NewLet(name, bound, body), nil
	case tagIf:
		cond, err := d.expr()
		if err != nil {
			return nil, err
		}
		then, err := d.expr()
		if err != nil {
			return nil, err
		}
		els, err := d.expr()
		if err != nil {
			return nil, err
		}
		return NewIf(cond, then, els), nil
	}
	return nil, fmt.Errorf("bad expr tag %d at byte %d", tag, d.pos-1)
}

func (d *decoder) typ() (Type, error) {
	tag, err := d.byte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagTypeInt:
		return TInt, nil
	case tagTypeString:
		return TString, nil
	case tagTypeBool:
		return TBool, nil
	case tagTypeRecord:
		n, err := d.uint32()
		if err != nil {
			return nil, err
		}
		types := make(map[string]Type, n)
		for i := uint32(0); i < n; i++ {
			key, err := d.string()
			if err != nil {
				return nil, err
			}
			sub, err := d.typ()
			if err != nil {
				return nil, err
			}
			types[key] = sub
		}
		return NewTRecord(types), nil
	case tagTypeFunc:
		nParams, err := d.uint32()
		if err != nil {
			return nil, err
		}
		params := make([]Param, nParams)
		for idx := range params {
			name, err := d.string()
			if err != nil {
				return nil, err
			}
			hasType, err := d.byte()
			if err != nil {
				return nil, err
			}
			var typ Type
			if hasType == 1 {
				typ, err = d.typ()
				if err != nil {
					return nil, err
				}
			}
			params[idx] = Param{Name: name, Typ: typ}
		}
		retType, err := d.typ()
		if err != nil {
			return nil, err
		}
		return NewTFunction(params, retType), nil
	case tagTypeVar:
		name, err := d.string()
		if err != nil {
			return nil, err
		}
		return NewTVar(name), nil
	}
	return nil, fmt.Errorf("bad type tag %d at byte %d", tag, d.pos-1)
}
