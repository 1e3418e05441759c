package parse

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle"
	"github.com/alecthomas/participle/lexer"
)

var (
	vibeLexer = lexer.Unquote(
		lexer.Must(
			lexer.Regexp(`(\s+)`+
				`|(?P<Keyword>(fn|let|in|if|then|else|true|false|type)\b)`+
				`|(?P<Ident>[a-zA-Z_][a-zA-Z0-9_]*)`+
				`|(?P<HashRef>#[0-9a-fA-F]+)`+
				`|(?P<Number>\d+)`+
				`|(?P<String>'[^']*'|"[^"]*")`+
				`|(?P<Operators>->|\+\+|==|[-+*/%,.(){}=<>:;])`,
			),
		),
		"String",
	)
	exprParser     = participle.MustBuild(&Expr{}, vibeLexer)
	typeDeclParser = participle.MustBuild(&TypeDecl{}, vibeLexer)
)

// Expr is the surface expression grammar. Binary operators are
// desugared into builtin calls during conversion, so precedence is
// encoded here and nowhere else.
type Expr struct {
	Lambda *Lambda `  @@`
	If     *If     `| @@`
	Let    *Let    `| @@`
	Cmp    *Cmp    `| @@`
}

type Lambda struct {
	Params []*LambdaParam `"fn" @@ { "," @@ }`
	Body   *Expr          `"->" @@`
}

type LambdaParam struct {
	Name string  `@Ident`
	Type *string `[ ":" @Ident ]`
}

type If struct {
	Cond *Expr `"if" @@`
	Then *Expr `"then" @@`
	Else *Expr `"else" @@`
}

type Let struct {
	Name  string `"let" @Ident`
	Bound *Expr  `"=" @@`
	Body  *Expr  `"in" @@`
}

type Cmp struct {
	Lhs *Sum    `@@`
	Op  *string `[ @("==" | "<")`
	Rhs *Sum    `@@ ]`
}

type Sum struct {
	Lhs *Product `@@`
	Ops []*SumOp `{ @@ }`
}

type SumOp struct {
	Op  string   `@("+" | "-" | "++")`
	Rhs *Product `@@`
}

type Product struct {
	Lhs *Postfix  `@@`
	Ops []*ProdOp `{ @@ }`
}

type ProdOp struct {
	Op  string   `@("*" | "/" | "%")`
	Rhs *Postfix `@@`
}

type Postfix struct {
	Atom *Atom        `@@`
	Tail []*PostfixOp `{ @@ }`
}

type PostfixOp struct {
	Member *string   `  "." @Ident`
	Call   *CallArgs `| @@`
}

type CallArgs struct {
	Args []*Expr `"(" [ @@ { "," @@ } ] ")"`
}

type Atom struct {
	HashRef *string `  @HashRef`
	Num     *string `| @Number`
	Str     *string `| @String`
	True    bool    `| @"true"`
	False   bool    `| @"false"`
	Record  *Record `| @@`
	Var     *string `| @Ident`
	Paren   *Expr   `| "(" @@ ")"`
}

type Record struct {
	Fields []*RecordField `"{" [ @@ { "," @@ } ] "}"`
}

type RecordField struct {
	Name  string `@Ident`
	Value *Expr  `":" @@`
}

// TypeDecl is the surface form of `type Name = <type>`.
type TypeDecl struct {
	Name string    `"type" @Ident`
	Type *TypeExpr `"=" @@`
}

type TypeExpr struct {
	Record *TypeRecord `  @@`
	Atom   *string     `| @Ident`
}

type TypeRecord struct {
	Fields []*TypeField `"{" [ @@ { "," @@ } ] "}"`
}

type TypeField struct {
	Name string    `@Ident`
	Type *TypeExpr `":" @@`
}

// Binding is one `name = expr` of an input, or a bare expression when
// Name is empty.
type Binding struct {
	Name string
	Expr *Expr
}

// Input is a parsed line of user input: either a type declaration, or
// one or more bindings separated by `;`. Bindings in the same input may
// reference each other, which is how mutually recursive definitions are
// written.
type Input struct {
	TypeDecl *TypeDecl
	Bindings []*Binding
}

// ParseExpr parses a single expression.
func ParseExpr(input string) (*Expr, error) {
	expr := &Expr{}
	if err := exprParser.ParseString(input, expr); err != nil {
		return nil, err
	}
	return expr, nil
}

// Parse parses a full input line.
func Parse(input string) (*Input, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, fmt.Errorf("empty input")
	}
	if isTypeDecl(trimmed) {
		decl := &TypeDecl{}
		if err := typeDeclParser.ParseString(trimmed, decl); err != nil {
			return nil, err
		}
		return &Input{TypeDecl: decl}, nil
	}

	var bindings []*Binding
	for _, chunk := range splitTopLevel(trimmed, ';') {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		name, exprSrc := splitBinding(chunk)
		expr, err := ParseExpr(exprSrc)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, &Binding{Name: name, Expr: expr})
	}
	if len(bindings) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	return &Input{Bindings: bindings}, nil
}

func isTypeDecl(input string) bool {
	rest := strings.TrimPrefix(input, "type")
	return rest != input && len(rest) > 0 && (rest[0] == ' ' || rest[0] == '\t')
}

// splitTopLevel splits on a separator, skipping occurrences inside
// string literals and brackets.
func splitTopLevel(input string, sep byte) []string {
	var out []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(input); i++ {
		c := input[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, input[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, input[start:])
	return out
}

// splitBinding recognizes a `name = expr` prefix. `==` never starts a
// binding, and only a lone identifier left of the `=` counts.
func splitBinding(chunk string) (string, string) {
	eq := -1
	var quote byte
	for i := 0; i < len(chunk); i++ {
		c := chunk[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '=':
			if i+1 < len(chunk) && chunk[i+1] == '=' {
				i++
				continue
			}
			eq = i
		}
		if eq >= 0 {
			break
		}
	}
	if eq < 0 {
		return "", chunk
	}
	name := strings.TrimSpace(chunk[:eq])
	if !isIdent(name) {
		return "", chunk
	}
	return name, chunk[eq+1:]
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		isLetter := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if i == 0 && !isLetter {
			return false
		}
		if !isLetter && !isDigit {
			return false
		}
	}
	return true
}
