package executor

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher/parser"
)

// Source supplies postings and the document universe. *segment.Reader,
// *index.Index and *index.MemoryIndex all satisfy it.
type Source interface {
	Postings(term string) ([]uint32, error)
	Universe() *roaring.Bitmap
}

// Evaluate walks node against src. Absent terms match nothing; negation is
// taken relative to src's universe.
func Evaluate(node parser.Node, src Source) (*roaring.Bitmap, error) {
	ev := &evaluator{src: src}
	return ev.eval(node)
}

type evaluator struct {
	src      Source
	universe *roaring.Bitmap
}

func (ev *evaluator) eval(node parser.Node) (*roaring.Bitmap, error) {
	switch n := node.(type) {
	case *parser.Term:
		ids, err := ev.src.Postings(n.Value)
		if err != nil {
			return nil, fmt.Errorf("fetching postings for %q: %w", n.Value, err)
		}
		return roaring.BitmapOf(ids...), nil
	case *parser.Not:
		operand, err := ev.eval(n.Operand)
		if err != nil {
			return nil, err
		}
		return roaring.AndNot(ev.all(), operand), nil
	case *parser.Binary:
		left, err := ev.eval(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := ev.eval(n.Right)
		if err != nil {
			return nil, err
		}
		if n.Op == parser.And {
			left.And(right)
		} else {
			left.Or(right)
		}
		return left, nil
	case nil:
		return roaring.New(), nil
	default:
		return nil, fmt.Errorf("unknown query node %T", node)
	}
}

// all returns the universe, fetched once per evaluation.
func (ev *evaluator) all() *roaring.Bitmap {
	if ev.universe == nil {
		ev.universe = ev.src.Universe()
	}
	return ev.universe
}
