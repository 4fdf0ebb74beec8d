package workflow

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Helpers for working with order-preserving yaml.Node mappings. A mapping
// node stores its entries as alternating key/value nodes in Content.

func stringNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

func boolNode(value bool) *yaml.Node {
	v := "false"
	if value {
		v = "true"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: v}
}

func sequenceNode(items ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: items}
}

func stringSequence(values []string) *yaml.Node {
	seq := sequenceNode()
	seq.Content = make([]*yaml.Node, 0, len(values))
	for _, v := range values {
		seq.Content = append(seq.Content, stringNode(v))
	}
	return seq
}

// mappingNode builds a mapping from alternating key, value arguments.
func mappingNode(pairs ...any) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i := 0; i+1 < len(pairs); i += 2 {
		key := pairs[i].(string)
		setKey(m, key, pairs[i+1].(*yaml.Node))
	}
	return m
}

// resolve follows alias nodes to their anchored target.
func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func isMapping(n *yaml.Node) bool {
	n = resolve(n)
	return n != nil && n.Kind == yaml.MappingNode
}

// lookup returns the value stored under key in mapping m, or nil.
func lookup(m *yaml.Node, key string) *yaml.Node {
	m = resolve(m)
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return resolve(m.Content[i+1])
		}
	}
	return nil
}

func hasKey(m *yaml.Node, key string) bool {
	m = resolve(m)
	if m == nil || m.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return true
		}
	}
	return false
}

// setKey replaces the value under key in place, or appends a new entry.
func setKey(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = value
			return
		}
	}
	m.Content = append(m.Content, stringNode(key), value)
}

// keys lists the keys of mapping m in document order.
func keys(m *yaml.Node) []string {
	m = resolve(m)
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	out := make([]string, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		out = append(out, m.Content[i].Value)
	}
	return out
}

// scalarValue returns the value of a scalar node, or "" for anything else.
func scalarValue(n *yaml.Node) string {
	n = resolve(n)
	if n == nil || n.Kind != yaml.ScalarNode {
		return ""
	}
	return n.Value
}

// flatText joins every scalar reachable from n, lowercased. It is used for
// loose substring classification of values that may be a scalar or a list.
func flatText(n *yaml.Node) string {
	var parts []string
	var walk func(*yaml.Node)
	walk = func(n *yaml.Node) {
		n = resolve(n)
		if n == nil {
			return
		}
		if n.Kind == yaml.ScalarNode {
			parts = append(parts, n.Value)
			return
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(n)
	return strings.ToLower(strings.Join(parts, " "))
}

// clone deep-copies a node tree. Aliases are replaced by copies of their
// targets and anchors are dropped, so the copy can be emitted on its own.
// The tree must be acyclic, which expand guarantees for parsed documents.
func clone(n *yaml.Node) *yaml.Node {
	n = resolve(n)
	if n == nil {
		return nil
	}
	c := *n
	c.Anchor = ""
	c.Alias = nil
	if n.Content != nil {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = clone(child)
		}
	}
	return &c
}

// maxExpandedNodes caps alias expansion of a single document.
const maxExpandedNodes = 1 << 20

// expand returns a copy of n with every alias materialized and every "<<"
// merge key applied. Keys written in a mapping win over merged ones, and
// earlier merge sources win over later ones.
func expand(n *yaml.Node) (*yaml.Node, error) {
	e := &expander{active: make(map[*yaml.Node]bool)}
	return e.node(n)
}

type expander struct {
	active map[*yaml.Node]bool
	count  int
}

func (e *expander) node(n *yaml.Node) (*yaml.Node, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind == yaml.AliasNode {
		if n.Alias == nil {
			return nil, errors.Errorf("alias %q has no anchor", n.Value)
		}
		if e.active[n.Alias] {
			return nil, errors.Errorf("anchor %q contains itself", n.Alias.Anchor)
		}
		return e.node(n.Alias)
	}
	e.count++
	if e.count > maxExpandedNodes {
		return nil, errors.Errorf("alias expansion exceeds %d nodes", maxExpandedNodes)
	}
	e.active[n] = true
	defer delete(e.active, n)

	c := *n
	c.Anchor = ""
	c.Alias = nil
	c.Content = nil
	if n.Kind == yaml.MappingNode {
		if err := e.mapping(n, &c); err != nil {
			return nil, err
		}
		return &c, nil
	}
	for _, child := range n.Content {
		cc, err := e.node(child)
		if err != nil {
			return nil, err
		}
		c.Content = append(c.Content, cc)
	}
	return &c, nil
}

func (e *expander) mapping(n, out *yaml.Node) error {
	explicit := make(map[string]bool)
	for i := 0; i+1 < len(n.Content); i += 2 {
		if !isMergeKey(n.Content[i]) {
			explicit[n.Content[i].Value] = true
		}
	}
	merged := make(map[string]bool)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if !isMergeKey(k) {
			kc, err := e.node(k)
			if err != nil {
				return err
			}
			vc, err := e.node(v)
			if err != nil {
				return err
			}
			out.Content = append(out.Content, kc, vc)
			continue
		}
		sources, err := e.mergeSources(v)
		if err != nil {
			return err
		}
		for _, src := range sources {
			for j := 0; j+1 < len(src.Content); j += 2 {
				key := src.Content[j].Value
				if explicit[key] || merged[key] {
					continue
				}
				merged[key] = true
				out.Content = append(out.Content, src.Content[j], src.Content[j+1])
			}
		}
	}
	return nil
}

// mergeSources expands the value of a merge key into the mappings it
// names.
func (e *expander) mergeSources(v *yaml.Node) ([]*yaml.Node, error) {
	x, err := e.node(v)
	if err != nil {
		return nil, err
	}
	switch x.Kind {
	case yaml.MappingNode:
		return []*yaml.Node{x}, nil
	case yaml.SequenceNode:
		for _, item := range x.Content {
			if item.Kind != yaml.MappingNode {
				return nil, errors.New("merge key list must contain only mappings")
			}
		}
		return x.Content, nil
	}
	return nil, errors.New("merge key value must be a mapping or a list of mappings")
}

func isMergeKey(k *yaml.Node) bool {
	if k.Kind != yaml.ScalarNode {
		return false
	}
	return k.Tag == "!!merge" || (k.Value == "<<" && k.Style == 0 && (k.Tag == "" || k.Tag == "!!str"))
}
