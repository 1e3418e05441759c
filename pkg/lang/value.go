package lang

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sort"

	pp "github.com/mizchi/vibe-lang-sub001/pkg/prettyprint"
)

type Value interface {
	Format() pp.Doc
	GetType() Type

	WriteAsJSON(*bufio.Writer) error
}

// Int

type VInt int

var _ Value = NewVInt(0)

func NewVInt(v int) *VInt {
	val := VInt(v)
	return &val
}

func (v *VInt) Format() pp.Doc {
	return pp.Textf("%d", *v)
}

func (v *VInt) GetType() Type {
	return TInt
}

func (v *VInt) WriteAsJSON(w *bufio.Writer) error {
	_, err := w.WriteString(v.Format().String())
	return err
}

func mustBeVInt(v Value) *VInt {
	i, ok := v.(*VInt)
	if !ok {
		panic(fmt.Sprintf("not an int: %s", v.Format()))
	}
	return i
}

// Bool

type VBool bool

var _ Value = NewVBool(false)

func NewVBool(b bool) *VBool {
	val := VBool(b)
	return &val
}

func (v *VBool) Format() pp.Doc {
	if *v {
		return pp.Text("true")
	}
	return pp.Text("false")
}

func (v *VBool) GetType() Type {
	return TBool
}

func (v *VBool) WriteAsJSON(w *bufio.Writer) error {
	_, err := w.WriteString(v.Format().String())
	return err
}

// String

type VString string

var _ Value = NewVString("")

func NewVString(s string) *VString {
	val := VString(s)
	return &val
}

func (v *VString) Format() pp.Doc {
	return pp.Textf(`%#v`, string(*v))
}

func (v *VString) GetType() Type {
	return TString
}

func (v *VString) WriteAsJSON(w *bufio.Writer) error {
	escaped, err := json.Marshal(string(*v))
	if err != nil {
		return err
	}
	_, err = w.Write(escaped)
	return err
}

func mustBeVString(v Value) string {
	s, ok := v.(*VString)
	if !ok {
		panic(fmt.Sprintf("not a string: %s", v.Format()))
	}
	return string(*s)
}

// Record

type VRecord struct {
	vals map[string]Value
}

var _ Value = &VRecord{}

func NewVRecord(vals map[string]Value) *VRecord {
	return &VRecord{
		vals: vals,
	}
}

func (v *VRecord) GetValue(name string) Value {
	return v.vals[name]
}

func (v *VRecord) sortedKeys() []string {
	keys := make([]string, 0, len(v.vals))
	for k := range v.vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v *VRecord) GetType() Type {
	types := map[string]Type{}
	for name, val := range v.vals {
		types[name] = val.GetType()
	}
	return &TRecord{
		types: types,
	}
}

func (v *VRecord) Format() pp.Doc {
	if len(v.vals) == 0 {
		return pp.Text("{}")
	}

	keys := v.sortedKeys()
	kvDocs := make([]pp.Doc, len(keys))
	for idx, key := range keys {
		kvDocs[idx] = pp.Seq([]pp.Doc{
			pp.Text(key),
			pp.Text(": "),
			v.vals[key].Format(),
		})
	}

	return pp.Bracket("{", pp.Join(kvDocs, pp.CommaNewline), "}")
}

func (v *VRecord) WriteAsJSON(w *bufio.Writer) error {
	if _, err := w.WriteString("{"); err != nil {
		return err
	}
	for idx, key := range v.sortedKeys() {
		if idx > 0 {
			if _, err := w.WriteString(","); err != nil {
				return err
			}
		}
		escapedKey, err := json.Marshal(key)
		if err != nil {
			return err
		}
		if _, err := w.Write(escapedKey); err != nil {
			return err
		}
		if _, err := w.WriteString(":"); err != nil {
			return err
		}
		if err := v.vals[key].WriteAsJSON(w); err != nil {
			return err
		}
	}
	_, err := w.WriteString("}")
	return err
}

// Lambda

type vLambda struct {
	def            *ELambda
	definedInScope *Scope
}

var _ Value = &vLambda{}

func (v *vLambda) GetType() Type {
	typ, err := v.def.GetType(NewTypeScope(BuiltinsTypeScope))
	if err != nil {
		// The defining tree already checked; a failure here means the
		// closure escaped its resolver. Surface it as an opaque type.
		return freshTVar()
	}
	return typ
}

func (v *vLambda) Format() pp.Doc {
	return v.def.Format()
}

func (v *vLambda) WriteAsJSON(w *bufio.Writer) error {
	escaped, err := json.Marshal(v.Format().String())
	if err != nil {
		return err
	}
	_, err = w.Write(escaped)
	return err
}

// Builtin

type VBuiltin struct {
	Name    string
	Params  []Param
	RetType Type

	Impl func(args []Value) (Value, error)
}

var _ Value = &VBuiltin{}

func (v *VBuiltin) GetType() Type {
	return &tFunction{
		params:  v.Params,
		retType: v.RetType,
	}
}

func (v *VBuiltin) Format() pp.Doc {
	return pp.Textf("<builtin %s>", v.Name)
}

func (v *VBuiltin) WriteAsJSON(w *bufio.Writer) error {
	escaped, err := json.Marshal(v.Format().String())
	if err != nil {
		return err
	}
	_, err = w.Write(escaped)
	return err
}

// MarshalValueJSON renders a value as a standalone JSON document.
func MarshalValueJSON(v Value) (json.RawMessage, error) {
	var buf []byte
	w := newSliceWriter(&buf)
	bw := bufio.NewWriter(w)
	if err := v.WriteAsJSON(bw); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	return json.RawMessage(buf), nil
}

type sliceWriter struct {
	buf *[]byte
}

func newSliceWriter(buf *[]byte) *sliceWriter {
	return &sliceWriter{buf: buf}
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}
