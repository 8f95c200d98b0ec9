package transport

import (
	"encoding/xml"
	"strings"
)

// Node is a generic XML element as returned by the host.
type Node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []*Node    `xml:",any"`
}

func (n *Node) Name() string {
	return n.XMLName.Local
}

func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Text returns the trimmed character data of the element.
func (n *Node) Text() string {
	return strings.TrimSpace(n.Content)
}

// HasChildren reports whether the element contains sub-elements.
func (n *Node) HasChildren() bool {
	return len(n.Nodes) > 0
}

// Child returns the first direct child with the given name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Nodes {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// ChildText returns the text of the named child.
func (n *Node) ChildText(name string) (string, bool) {
	c := n.Child(name)
	if c == nil {
		return "", false
	}
	return c.Text(), true
}

// Children returns every direct child with the given name.
func (n *Node) Children(name string) []*Node {
	var out []*Node
	for _, c := range n.Nodes {
		if c.Name() == name {
			out = append(out, c)
		}
	}
	return out
}

// Parse decodes an XML document into its root node.
func Parse(data []byte) (*Node, error) {
	root := &Node{}
	if err := xml.Unmarshal(data, root); err != nil {
		return nil, err
	}
	return root, nil
}
