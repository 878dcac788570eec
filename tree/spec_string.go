package tree

import (
	"fmt"
	"strconv"
	"strings"
)

// Encoding of a Spec as text, as stored in container metadata:
//
//	leaf   $
//	none   N
//	list   L<n>#<leaves0>#<leaves1>...(<child0>,<child1>,...)
//	tuple  T<n>#...(...)
//	dict   D<n>#...("key0":<child0>,...)
//
// Each #<leaves> is the leaf count of the corresponding child, which lets a
// reader slice the flat value list without walking the children first.

// String encodes the spec.
func (s *Spec) String() string {
	var b strings.Builder
	s.write(&b)
	return b.String()
}

func (s *Spec) write(b *strings.Builder) {
	switch s.Kind {
	case KindLeaf:
		b.WriteByte('$')
		return
	case KindNone:
		b.WriteByte('N')
		return
	case KindList:
		b.WriteByte('L')
	case KindTuple:
		b.WriteByte('T')
	case KindDict:
		b.WriteByte('D')
	}
	b.WriteString(strconv.Itoa(len(s.Children)))
	for _, c := range s.Children {
		b.WriteByte('#')
		b.WriteString(strconv.Itoa(c.NumLeaves))
	}
	b.WriteByte('(')
	for i, c := range s.Children {
		if i > 0 {
			b.WriteByte(',')
		}
		if s.Kind == KindDict {
			b.WriteString(strconv.Quote(s.Keys[i]))
			b.WriteByte(':')
		}
		c.write(b)
	}
	b.WriteByte(')')
}

// ParseSpec decodes text produced by Spec.String.
func ParseSpec(text string) (*Spec, error) {
	p := &specParser{src: text}
	s, err := p.parse()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.src) {
		return nil, p.errorf("trailing input")
	}
	return s, nil
}

type specParser struct {
	src string
	pos int
}

func (p *specParser) errorf(format string, args ...any) error {
	return fmt.Errorf("tree: parse spec at %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *specParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *specParser) expect(c byte) error {
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *specParser) number() (int, error) {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, p.errorf("expected number")
	}
	return strconv.Atoi(p.src[start:p.pos])
}

func (p *specParser) parse() (*Spec, error) {
	var kind NodeKind
	switch p.peek() {
	case '$':
		p.pos++
		return Leaf(), nil
	case 'N':
		p.pos++
		return &Spec{Kind: KindNone}, nil
	case 'L':
		kind = KindList
	case 'T':
		kind = KindTuple
	case 'D':
		kind = KindDict
	default:
		return nil, p.errorf("unexpected %q", p.peek())
	}
	p.pos++

	n, err := p.number()
	if err != nil {
		return nil, err
	}
	counts := make([]int, n)
	for i := range counts {
		if err := p.expect('#'); err != nil {
			return nil, err
		}
		if counts[i], err = p.number(); err != nil {
			return nil, err
		}
	}
	if err := p.expect('('); err != nil {
		return nil, err
	}

	s := &Spec{Kind: kind}
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := p.expect(','); err != nil {
				return nil, err
			}
		}
		if kind == KindDict {
			key, err := p.quoted()
			if err != nil {
				return nil, err
			}
			if err := p.expect(':'); err != nil {
				return nil, err
			}
			s.Keys = append(s.Keys, key)
		}
		child, err := p.parse()
		if err != nil {
			return nil, err
		}
		if child.NumLeaves != counts[i] {
			return nil, p.errorf("child %d has %d leaves, header says %d", i, child.NumLeaves, counts[i])
		}
		s.Children = append(s.Children, child)
		s.NumLeaves += child.NumLeaves
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *specParser) quoted() (string, error) {
	if p.peek() != '"' {
		return "", p.errorf("expected quoted key")
	}
	prefix, err := strconv.QuotedPrefix(p.src[p.pos:])
	if err != nil {
		return "", p.errorf("bad key: %v", err)
	}
	p.pos += len(prefix)
	return strconv.Unquote(prefix)
}
