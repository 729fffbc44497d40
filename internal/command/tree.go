// Package command holds the command dictionary: a tree of named
// entries loaded once from configuration, plus the resolver that walks
// it with the tokens of a submitted line.
//
// A tree is immutable after Build and safe to share across sessions
// without synchronisation.
package command

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	kaerrors "keyagent/internal/errors"
)

// Definition is the configuration form of one command entry.
type Definition struct {
	Name        string       `yaml:"name" json:"name"`
	CommandText string       `yaml:"commandText" json:"commandText"`
	IsNode      bool         `yaml:"isNode" json:"isNode"`
	Children    []Definition `yaml:"children,omitempty" json:"children,omitempty"`
}

// Node is a single entry of the tree.  Name is stored lower-cased so
// that lookups against normalised tokens are case-insensitive.
type Node struct {
	Name        string
	CommandText string
	IsNode      bool

	children []*Node
	byName   map[string]*Node
}

// Children returns the child nodes in definition order.
func (n *Node) Children() []*Node { return n.children }

// Child returns the child with the given (already normalised) name.
func (n *Node) Child(name string) *Node {
	if n == nil || n.byName == nil {
		return nil
	}
	return n.byName[name]
}

// Tree is the root level of the command dictionary.
type Tree struct {
	roots  []*Node
	byName map[string]*Node
	size   int
}

// Build validates defs and returns the corresponding tree.  Sibling
// names must be unique after case folding; a duplicate is rejected
// here rather than shadowing an earlier entry at resolve time.
func Build(defs []Definition) (*Tree, error) {
	t := &Tree{}
	roots, byName, err := buildLevel(defs, "", &t.size)
	if err != nil {
		return nil, err
	}
	t.roots, t.byName = roots, byName
	return t, nil
}

// MustBuild is like Build but panics on error.  Intended for tests and
// static tables.
func MustBuild(defs []Definition) *Tree {
	t, err := Build(defs)
	if err != nil {
		panic(err)
	}
	return t
}

func buildLevel(defs []Definition, parent string, size *int) ([]*Node, map[string]*Node, error) {
	if len(defs) == 0 {
		return nil, nil, nil
	}
	nodes := make([]*Node, 0, len(defs))
	byName := make(map[string]*Node, len(defs))

	for _, d := range defs {
		name := normalizeName(d.Name)
		path := strings.TrimSpace(parent + " " + name)

		if name == "" {
			return nil, nil, &kaerrors.CommandError{Path: parent, Err: kaerrors.ErrEmptyCommandName}
		}
		if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
			return nil, nil, &kaerrors.CommandError{
				Path: path,
				Err:  fmt.Errorf("name %q contains whitespace and can never match a token", d.Name),
			}
		}
		if _, dup := byName[name]; dup {
			return nil, nil, &kaerrors.CommandError{Path: path, Err: kaerrors.ErrDuplicateCommand}
		}

		n := &Node{Name: name, CommandText: d.CommandText, IsNode: d.IsNode}
		children, childIndex, err := buildLevel(d.Children, path, size)
		if err != nil {
			return nil, nil, err
		}
		n.children, n.byName = children, childIndex

		nodes = append(nodes, n)
		byName[name] = n
		*size++
	}
	return nodes, byName, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Roots returns the root-level nodes in definition order.
func (t *Tree) Roots() []*Node {
	if t == nil {
		return nil
	}
	return t.roots
}

// Root returns the root node with the given name, matched
// case-insensitively.
func (t *Tree) Root(name string) *Node {
	if t == nil || t.byName == nil {
		return nil
	}
	return t.byName[normalizeName(name)]
}

// Len returns the total number of nodes in the tree.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return t.size
}

// Render writes an indented listing of the tree, one node per line.
func (t *Tree) Render(w io.Writer) error {
	var walk func(nodes []*Node, depth int) error
	walk = func(nodes []*Node, depth int) error {
		for _, n := range nodes {
			if _, err := fmt.Fprintf(w, "%s%s -> %q\n", strings.Repeat("  ", depth), n.Name, n.CommandText); err != nil {
				return err
			}
			if err := walk(n.children, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(t.Roots(), 0)
}
