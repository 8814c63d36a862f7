package parser

import "strings"

// Node is a query expression: *Term, *Not, or *Binary.
type Node interface {
	// String renders the node in canonical form. Parsing the result yields an
	// equivalent tree.
	String() string
	node()
}

type Op int

const (
	And Op = iota
	Or
)

func (o Op) String() string {
	if o == Or {
		return "||"
	}
	return "&&"
}

// Term matches the documents whose posting list contains Value.
type Term struct {
	Value string
}

// Not matches every document of the universe that Operand does not.
type Not struct {
	Operand Node
}

type Binary struct {
	Op    Op
	Left  Node
	Right Node
}

func (*Term) node()   {}
func (*Not) node()    {}
func (*Binary) node() {}

func (t *Term) String() string {
	return t.Value
}

func (n *Not) String() string {
	return "!" + group(n.Operand)
}

// String parenthesizes a binary right operand; left operands never need it
// because evaluation is left-associative.
func (b *Binary) String() string {
	var sb strings.Builder
	sb.WriteString(b.Left.String())
	sb.WriteByte(' ')
	sb.WriteString(b.Op.String())
	sb.WriteByte(' ')
	sb.WriteString(group(b.Right))
	return sb.String()
}

func group(n Node) string {
	if _, ok := n.(*Binary); ok {
		return "(" + n.String() + ")"
	}
	return n.String()
}

// Terms lists the distinct term values in n, in first-seen order.
func Terms(n Node) []string {
	var out []string
	seen := make(map[string]struct{})
	var walk func(Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case *Term:
			if _, ok := seen[v.Value]; !ok {
				seen[v.Value] = struct{}{}
				out = append(out, v.Value)
			}
		case *Not:
			walk(v.Operand)
		case *Binary:
			walk(v.Left)
			walk(v.Right)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}
