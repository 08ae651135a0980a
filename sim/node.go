package sim

import (
	"fmt"
)

// Node is an element of a simulation tree. Concrete node types embed
// NodeBase (directly or through another node type) and call Init from their
// constructor before returning.
type Node interface {
	Base() *NodeBase
}

// Expr is implemented by nodes that stand for an expression in generated
// code. Memory nodes, for instance, substitute as the identifier their buffer
// is bound to.
type Expr interface {
	CGExpression() string
}

// CodeFunc is an attribute value that emits code when its identifier appears
// on a line of its own in a template.
type CodeFunc func(g *Generator) error

// Attr is the result of an attribute lookup.
type Attr struct {
	// Owner is the node on which the attribute was found.
	Owner Node
	// Value is the attribute value. Nil when Set is false.
	Value any
	// Set is false for attributes that were declared but never assigned.
	Set bool
}

type attrSlot struct {
	value  any
	getter func() any
	set    bool
}

// tree holds state shared by every node of one tree.
type tree struct {
	names    map[string]int
	observer HookObserver
}

// NodeBase carries the identity, tree links, attributes and hook slots of a
// node.
type NodeBase struct {
	self     Node
	basename string
	name     string
	parent   Node
	children []Node
	attrs    map[string]attrSlot
	hooks    hookTable
	tree     *tree
}

// Base returns the receiver so that any type embedding NodeBase implements Node.
func (b *NodeBase) Base() *NodeBase { return b }

// Init attaches the node to parent (nil for a root) and assigns its unique
// name. It must be called exactly once, from the constructor of the concrete
// type, with self set to the outermost value.
func (b *NodeBase) Init(self Node, parent Node, basename string) {
	if self == nil {
		panic("NodeBase.Init: self must not be nil")
	}
	if basename == "" {
		panic("NodeBase.Init: basename must not be empty")
	}
	if b.self != nil {
		panic(fmt.Sprintf("NodeBase.Init: %s already initialized", b.name))
	}
	b.self = self
	b.basename = basename
	b.attrs = make(map[string]attrSlot)

	prefix := ""
	if parent != nil {
		pb := parent.Base()
		if pb.self == nil {
			panic("NodeBase.Init: parent is not initialized")
		}
		b.parent = parent
		b.tree = pb.tree
		if pb.parent != nil {
			prefix = pb.name + "_"
		}
	} else {
		b.tree = &tree{names: make(map[string]int)}
	}
	b.name = b.tree.unique(prefix + basename)

	b.Set("name", b.name)
	b.Set("basename", basename)

	if parent != nil {
		pb := parent.Base()
		pb.children = append(pb.children, self)
	}
}

func (t *tree) unique(name string) string {
	n := t.names[name]
	t.names[name] = n + 1
	if n == 0 {
		return name
	}
	for {
		n++
		candidate := fmt.Sprintf("%s_%d", name, n)
		if _, taken := t.names[candidate]; !taken {
			t.names[name] = n
			t.names[candidate] = 1
			return candidate
		}
	}
}

// Self returns the outermost node value this base belongs to.
func (b *NodeBase) Self() Node { return b.self }

// Name returns the unique name of the node within its tree.
func (b *NodeBase) Name() string { return b.name }

// Basename returns the name the node was created with.
func (b *NodeBase) Basename() string { return b.basename }

// Parent returns the parent node, or nil for the root.
func (b *NodeBase) Parent() Node { return b.parent }

// Children returns the direct children in insertion order.
func (b *NodeBase) Children() []Node { return b.children }

// Root returns the root of the tree.
func (b *NodeBase) Root() Node {
	n := b.self
	for n.Base().parent != nil {
		n = n.Base().parent
	}
	return n
}

// Set assigns a static attribute value.
func (b *NodeBase) Set(attr string, v any) {
	b.attrs[attr] = attrSlot{value: v, set: true}
}

// SetFunc assigns an attribute whose value is computed on every lookup.
func (b *NodeBase) SetFunc(attr string, fn func() any) {
	b.attrs[attr] = attrSlot{getter: fn, set: true}
}

// Declare records that the node owns attr without assigning it. Looking it up
// before it is Set shadows ancestors and resolves to an unset Attr.
// Declaring an attribute that already has a value is a no-op.
func (b *NodeBase) Declare(attr string) {
	if _, ok := b.attrs[attr]; ok {
		return
	}
	b.attrs[attr] = attrSlot{}
}

// Get looks attr up on this node only.
func (b *NodeBase) Get(attr string) (Attr, bool) {
	slot, ok := b.attrs[attr]
	if !ok {
		return Attr{}, false
	}
	if !slot.set {
		return Attr{Owner: b.self}, true
	}
	if slot.getter != nil {
		return Attr{Owner: b.self, Value: slot.getter(), Set: true}, true
	}
	return Attr{Owner: b.self, Value: slot.value, Set: true}, true
}

// Lookup returns the first definition of attr found on n or its ancestors.
func Lookup(n Node, attr string) (Attr, bool) {
	for cur := n; cur != nil; cur = cur.Base().parent {
		if a, ok := cur.Base().Get(attr); ok {
			return a, true
		}
	}
	return Attr{}, false
}

// LookupValue is Lookup for callers that need a value. Missing and unset
// attributes are both reported as ErrUnresolved.
func LookupValue(n Node, attr string) (any, error) {
	a, ok := Lookup(n, attr)
	if !ok {
		return nil, fmt.Errorf("%s: no attribute %q: %w", n.Base().name, attr, ErrUnresolved)
	}
	if !a.Set {
		return nil, fmt.Errorf("%s: attribute %q on %s: %w", n.Base().name, attr, a.Owner.Base().name, ErrUnresolved)
	}
	return a.Value, nil
}

// Ancestor returns the nearest node of type T on the path from n to the root,
// n included.
func Ancestor[T any](n Node) (T, bool) {
	for cur := n; cur != nil; cur = cur.Base().parent {
		if t, ok := cur.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// Walk visits n and its descendants depth-first in pre-order. Children added
// during the walk are visited if their parent has not been left yet.
func Walk(n Node, visit func(Node) error) error {
	if err := visit(n); err != nil {
		return err
	}
	b := n.Base()
	for i := 0; i < len(b.children); i++ {
		if err := Walk(b.children[i], visit); err != nil {
			return err
		}
	}
	return nil
}

// Generic is a plain node with no behavior of its own, useful as a grouping
// or attribute-carrying node.
type Generic struct {
	NodeBase
}

// NewNode creates a Generic node under parent.
func NewNode(parent Node, basename string) *Generic {
	n := &Generic{}
	n.Init(n, parent, basename)
	return n
}
