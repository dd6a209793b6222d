package pack

import (
	"fmt"
	"strings"
)

// Kind is one primitive or composite node of a property signature.
type Kind uint8

const (
	KindVoid Kind = iota
	KindBool
	KindUint8
	KindInt8
	KindUint16
	KindInt16
	KindUint32
	KindInt32
	KindUint64
	KindInt64
	KindPacked
	KindIPv6
	KindEUI64
	KindEUI48
	KindUTF8
	KindShortUTF8
	KindData
	KindGreedyData
	KindStruct
	KindArray
)

var kindByChar = map[byte]Kind{
	'.': KindVoid,
	'b': KindBool,
	'C': KindUint8,
	'c': KindInt8,
	'S': KindUint16,
	's': KindInt16,
	'L': KindUint32,
	'l': KindInt32,
	'X': KindUint64,
	'x': KindInt64,
	'i': KindPacked,
	'6': KindIPv6,
	'E': KindEUI64,
	'e': KindEUI48,
	'U': KindUTF8,
	'u': KindShortUTF8,
	'd': KindData,
	'D': KindGreedyData,
	't': KindStruct,
	'A': KindArray,
}

// Char returns the format character for k.
func (k Kind) Char() byte {
	for c, kind := range kindByChar {
		if kind == k {
			return c
		}
	}
	return '?'
}

// greedy kinds consume the rest of their enclosing buffer.
func (k Kind) greedy() bool {
	return k == KindGreedyData || k == KindArray
}

// Node is one parsed signature element. Struct and array nodes carry
// their element signature in Fields.
type Node struct {
	Kind   Kind
	Fields []Node
}

func (n Node) String() string {
	switch n.Kind {
	case KindStruct, KindArray:
		var b strings.Builder
		b.WriteByte(n.Kind.Char())
		b.WriteByte('(')
		for _, f := range n.Fields {
			b.WriteString(f.String())
		}
		b.WriteByte(')')
		return b.String()
	default:
		return string(n.Kind.Char())
	}
}

// Signature is a parsed property type signature. The zero value is the
// empty signature, which encodes and decodes nothing.
type Signature struct {
	raw   string
	nodes []Node
}

// Parse validates a signature string once so encode and decode never
// see a malformed layout.
func Parse(raw string) (Signature, error) {
	p := parser{src: raw}
	nodes, err := p.sequence(false)
	if err != nil {
		return Signature{}, err
	}
	if p.pos != len(p.src) {
		return Signature{}, p.errorf("unexpected %q", p.src[p.pos])
	}
	if err := checkGreedy(nodes, p); err != nil {
		return Signature{}, err
	}
	return Signature{raw: raw, nodes: nodes}, nil
}

// MustParse is Parse for static tables.
func MustParse(raw string) Signature {
	sig, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return sig
}

func (s Signature) String() string { return s.raw }

// Empty reports whether s carries no value: no elements, or only voids.
func (s Signature) Empty() bool {
	for _, n := range s.nodes {
		if n.Kind != KindVoid {
			return false
		}
	}
	return true
}

// Element returns the item signature of a lone array signature, for
// commands that add or remove a single entry. Any other signature is
// returned unchanged.
func (s Signature) Element() Signature {
	if len(s.nodes) != 1 || s.nodes[0].Kind != KindArray {
		return s
	}
	var b strings.Builder
	for _, f := range s.nodes[0].Fields {
		b.WriteString(f.String())
	}
	return Signature{raw: b.String(), nodes: s.nodes[0].Fields}
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %q at %d: %s", ErrInvalidSignature, p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) sequence(nested bool) ([]Node, error) {
	nodes := []Node{}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == ')' {
			if !nested {
				return nil, p.errorf("unbalanced ')'")
			}
			return nodes, nil
		}
		kind, ok := kindByChar[c]
		if !ok {
			return nil, p.errorf("unknown format %q", c)
		}
		p.pos++
		n := Node{Kind: kind}
		if kind == KindStruct || kind == KindArray {
			if p.pos >= len(p.src) || p.src[p.pos] != '(' {
				return nil, p.errorf("%q needs a parenthesized element", c)
			}
			p.pos++
			fields, err := p.sequence(true)
			if err != nil {
				return nil, err
			}
			if p.pos >= len(p.src) || p.src[p.pos] != ')' {
				return nil, p.errorf("missing ')'")
			}
			p.pos++
			if kind == KindArray && !consumes(fields) {
				return nil, p.errorf("array element consumes no bytes")
			}
			n.Fields = fields
		}
		nodes = append(nodes, n)
	}
	if nested {
		return nil, p.errorf("missing ')'")
	}
	return nodes, nil
}

// checkGreedy enforces that greedy nodes only appear last in a sequence
// and never at the top level of an array element.
func checkGreedy(nodes []Node, p parser) error {
	for i, n := range nodes {
		if n.Kind.greedy() && i != len(nodes)-1 {
			return p.errorf("%s must be the final element", n)
		}
		switch n.Kind {
		case KindStruct:
			if err := checkGreedy(n.Fields, p); err != nil {
				return err
			}
		case KindArray:
			for _, f := range n.Fields {
				if f.Kind.greedy() {
					return p.errorf("array element %s cannot be greedy", f)
				}
			}
			if err := checkGreedy(n.Fields, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func consumes(nodes []Node) bool {
	for _, n := range nodes {
		if n.Kind != KindVoid {
			return true
		}
	}
	return false
}
