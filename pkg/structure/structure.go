// Package structure recovers nested blocks and loops from the relative
// jumps of a decoded method.
//
// Every region is a half-open range of instruction indices. A backward
// branch (or a branch to itself) closes a loop that starts at its target; a
// forward branch opens a block that ends at its target; a switch opens one
// wrapper block per target. Regions that cross are repaired by widening the
// later-ending one, which is only possible for blocks. Anything else is
// irreducible and rejected.
package structure

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tliron/commonlog"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
)

var log = commonlog.GetLogger("jvm2wasm.structure")

var (
	// ErrIrreducible is returned for control flow that cannot be expressed
	// with properly nested blocks and loops.
	ErrIrreducible = errors.New("irreducible control flow")
	// ErrBadTarget is returned for a branch that does not land on an
	// instruction boundary.
	ErrBadTarget = errors.New("branch target is not an instruction boundary")
)

// Node is an element of a structured body.
type Node interface {
	node()
}

// Op is a single instruction, by index.
type Op struct {
	Index int
}

// Loop covers instructions [Start, End). Branching to it continues at
// Start.
type Loop struct {
	Start, End int
	Body       []Node
}

// Block covers instructions [Start, End). Branching to it continues at End.
// A conditional block has Guard set to the index of the forward branch that
// skips it; the guard is not part of Body. Wrapper marks the blocks a
// switch dispatches to.
type Block struct {
	Start, End int
	Guard      *int
	Wrapper    bool
	Body       []Node
}

func (Op) node()     {}
func (*Loop) node()  {}
func (*Block) node() {}

// Tree is the structured form of one method body.
type Tree struct {
	Body []Node
}

// Counts summarises the regions of a tree.
type Counts struct {
	Loops, Blocks, Conditionals, Wrappers int
}

// Count returns the number of regions of each shape.
func (t *Tree) Count() Counts {
	var c Counts
	Walk(t.Body, func(n Node) bool {
		switch n := n.(type) {
		case *Loop:
			c.Loops++
		case *Block:
			switch {
			case n.Guard != nil:
				c.Conditionals++
			case n.Wrapper:
				c.Wrappers++
			default:
				c.Blocks++
			}
		}
		return true
	})
	return c
}

// Walk visits nodes depth first in program order. Returning false from fn
// skips the children of the node.
func Walk(nodes []Node, fn func(Node) bool) {
	for _, n := range nodes {
		if !fn(n) {
			continue
		}
		switch n := n.(type) {
		case *Loop:
			Walk(n.Body, fn)
		case *Block:
			Walk(n.Body, fn)
		}
	}
}

// Ops returns the instruction indices of a body in program order. Guards of
// conditional blocks are not included.
func Ops(body []Node) []int {
	var out []int
	Walk(body, func(n Node) bool {
		if op, ok := n.(Op); ok {
			out = append(out, op.Index)
		}
		return true
	})
	return out
}

type shape uint8

// Shapes are ordered outermost first for regions with equal ranges.
const (
	loopShape shape = iota
	blockShape
	condShape
)

type region struct {
	start, end int
	shape      shape
	wrapper    bool
	group      int // switch that owns a wrapper, -1 otherwise
}

// Structure builds the region tree of a decoded method.
func Structure(instrs []bytecode.Instruction) (*Tree, error) {
	regions, err := collect(instrs)
	if err != nil {
		return nil, err
	}
	if err := repair(instrs, regions); err != nil {
		return nil, err
	}
	demoteGuards(regions)
	sort.SliceStable(regions, func(i, j int) bool {
		a, b := regions[i], regions[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if a.end != b.end {
			return a.end > b.end
		}
		return a.shape < b.shape
	})
	return build(len(instrs), regions), nil
}

// indexOf finds the instruction starting at byte offset off.
func indexOf(instrs []bytecode.Instruction, off int) (int, bool) {
	i := sort.Search(len(instrs), func(i int) bool { return instrs[i].Offset >= off })
	return i, i < len(instrs) && instrs[i].Offset == off
}

func collect(instrs []bytecode.Instruction) ([]*region, error) {
	var regions []*region
	loops := make(map[int]int) // header -> last back-edge
	groups := 0

	for i, ins := range instrs {
		deltas := bytecode.Branches(ins.Op)
		if deltas == nil {
			continue
		}
		switch ins.Op.(type) {
		case bytecode.TableSwitch, bytecode.LookupSwitch:
			g := groups
			groups++
			for _, d := range deltas {
				t, err := target(instrs, i, d)
				if err != nil {
					return nil, err
				}
				if t <= i {
					return nil, fmt.Errorf("%w: %s at %d has backward target %d",
						ErrIrreducible, bytecode.Mnemonic(ins.Opcode), ins.Offset, instrs[t].Offset)
				}
				regions = append(regions, &region{start: i, end: t, shape: blockShape, wrapper: true, group: g})
			}
			continue
		}

		t, err := target(instrs, i, deltas[0])
		if err != nil {
			return nil, err
		}
		if t <= i {
			if b, ok := loops[t]; !ok || i > b {
				loops[t] = i
			}
			continue
		}
		s := blockShape
		if bytecode.Conditional(ins.Op) {
			s = condShape
		}
		regions = append(regions, &region{start: i, end: t, shape: s, group: -1})
	}

	headers := make([]int, 0, len(loops))
	for t := range loops {
		headers = append(headers, t)
	}
	sort.Ints(headers)
	for _, t := range headers {
		regions = append(regions, &region{start: t, end: loops[t] + 1, shape: loopShape, group: -1})
	}
	return regions, nil
}

func target(instrs []bytecode.Instruction, i int, delta int32) (int, error) {
	off := instrs[i].Offset + int(delta)
	t, ok := indexOf(instrs, off)
	if !ok {
		return 0, fmt.Errorf("%w: %s at %d jumps to %d",
			ErrBadTarget, bytecode.Mnemonic(instrs[i].Opcode), instrs[i].Offset, off)
	}
	return t, nil
}

// repair widens blocks until no two regions cross. Of two crossing regions
// the later-ending one is moved to start where the other starts; all
// wrappers of a switch move together. Moving a loop would change where its
// back-edges land, so a crossing that needs it is irreducible.
func repair(instrs []bytecode.Instruction, regions []*region) error {
	for changed := true; changed; {
		changed = false
		for _, a := range regions {
			for _, b := range regions {
				if !(a.start < b.start && b.start < a.end && a.end < b.end) {
					continue
				}
				if b.shape == loopShape {
					return fmt.Errorf("%w: jump into loop at %d from region at %d",
						ErrIrreducible, instrs[b.start].Offset, instrs[a.start].Offset)
				}
				log.Debugf("widening region [%d,%d) to start at %d", b.start, b.end, a.start)
				if b.group >= 0 {
					for _, w := range regions {
						if w.group == b.group {
							w.start = a.start
						}
					}
				} else {
					b.start = a.start
					b.shape = blockShape
				}
				changed = true
			}
		}
	}
	return nil
}

// demoteGuards turns a conditional block into a plain block when another
// region nested inside it opens at the guard, because the guard would then
// have to be evaluated inside that region.
func demoteGuards(regions []*region) {
	for _, c := range regions {
		if c.shape != condShape {
			continue
		}
		for _, r := range regions {
			if r != c && r.start == c.start && r.end < c.end {
				c.shape = blockShape
				break
			}
		}
	}
}

func build(n int, regions []*region) *Tree {
	tree := &Tree{}
	type open struct {
		end  int
		body *[]Node
	}
	stack := []open{{end: n + 1, body: &tree.Body}}
	next := 0

	for i := 0; i < n; i++ {
		for len(stack) > 1 && stack[len(stack)-1].end <= i {
			stack = stack[:len(stack)-1]
		}
		guarded := false
		for next < len(regions) && regions[next].start == i {
			r := regions[next]
			next++
			parent := stack[len(stack)-1].body
			switch r.shape {
			case loopShape:
				l := &Loop{Start: r.start, End: r.end}
				*parent = append(*parent, l)
				stack = append(stack, open{end: r.end, body: &l.Body})
			default:
				b := &Block{Start: r.start, End: r.end, Wrapper: r.wrapper}
				if r.shape == condShape {
					g := r.start
					b.Guard = &g
					guarded = true
				}
				*parent = append(*parent, b)
				stack = append(stack, open{end: r.end, body: &b.Body})
			}
		}
		if guarded {
			continue
		}
		top := stack[len(stack)-1].body
		*top = append(*top, Op{Index: i})
	}
	return tree
}
