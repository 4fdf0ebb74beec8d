package workflow

import (
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EncodeOptions configure serialization. They are applied to a copy of the
// tree at output time; nothing is registered globally.
type EncodeOptions struct {
	Indent int
	// LiteralMultiline emits every multi-line string as a literal block
	// scalar with trailing whitespace removed from each line.
	LiteralMultiline bool
}

// DefaultEncodeOptions match the layout of the committed workflow file.
var DefaultEncodeOptions = EncodeOptions{Indent: 2, LiteralMultiline: true}

// Encode writes node to w as a single YAML document, keys in insertion order.
func Encode(w io.Writer, node *yaml.Node, opts EncodeOptions) error {
	if node == nil {
		return errors.New("workflow: nothing to encode")
	}
	out := clone(node)
	if opts.LiteralMultiline {
		literalize(out)
	}
	enc := yaml.NewEncoder(w)
	if opts.Indent > 0 {
		enc.SetIndent(opts.Indent)
	}
	if err := enc.Encode(out); err != nil {
		return errors.Wrap(err, "workflow: encode")
	}
	return errors.Wrap(enc.Close(), "workflow: encode")
}

// Bytes serializes the combined workflow.
func (c *Combined) Bytes(opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, c.root, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func literalize(n *yaml.Node) {
	seen := make(map[*yaml.Node]bool)
	var walk func(*yaml.Node)
	walk = func(n *yaml.Node) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		if n.Kind == yaml.ScalarNode && strings.Contains(n.Value, "\n") {
			n.Value = trimLines(n.Value)
			n.Style = yaml.LiteralStyle
			return
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(n)
}

// trimLines strips trailing whitespace from each line, which would
// otherwise force the emitter out of block style.
func trimLines(s string) string {
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := strings.Join(lines, "\n")
	if strings.HasSuffix(s, "\n") {
		out += "\n"
	}
	return out
}
