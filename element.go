package xmlstream

import "strings"

// Attr is a single element attribute, in document order.
type Attr struct {
	Name  string
	Value string
}

// Element is a stanza tree node. Name is the qualified name exactly as
// written on the wire (e.g. "stream:features"); prefix resolution is an
// application concern. Character data is accumulated into Text; child
// elements keep document order in Children.
type Element struct {
	Name     string
	Attrs    []Attr
	Children []*Element
	Text     string
}

// NewElement constructs an element with the given qualified name.
func NewElement(name string, attrs ...Attr) *Element {
	return &Element{Name: name, Attrs: attrs}
}

// AddChild appends c and returns it, so construction chains read top-down.
func (e *Element) AddChild(c *Element) *Element {
	e.Children = append(e.Children, c)
	return c
}

// NewChild appends a fresh child element with the given name and returns it.
func (e *Element) NewChild(name string) *Element {
	return e.AddChild(NewElement(name))
}

// AddText appends character data to the element.
func (e *Element) AddText(s string) {
	e.Text += s
}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Child returns the first child with the given qualified name, or nil.
func (e *Element) Child(name string) *Element {
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// XML serializes the element subtree. Text is written before child
// elements; interleaving is not preserved.
func (e *Element) XML() string {
	var b strings.Builder
	e.writeXML(&b)
	return b.String()
}

// OpenTag serializes only the start tag, for framing a stream root
// (`<stream>...` stays open for the lifetime of the connection).
func (e *Element) OpenTag() string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(e.Name)
	writeAttrs(&b, e.Attrs)
	b.WriteByte('>')
	return b.String()
}

// CloseTag serializes the matching end tag.
func (e *Element) CloseTag() string {
	return "</" + e.Name + ">"
}

func (e *Element) writeXML(b *strings.Builder) {
	if e.Text == "" && len(e.Children) == 0 {
		b.WriteByte('<')
		b.WriteString(e.Name)
		writeAttrs(b, e.Attrs)
		b.WriteString("/>")
		return
	}
	b.WriteString(e.OpenTag())
	escapeText(b, e.Text)
	for _, c := range e.Children {
		c.writeXML(b)
	}
	b.WriteString(e.CloseTag())
}

func writeAttrs(b *strings.Builder, attrs []Attr) {
	for _, a := range attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString(`="`)
		escapeAttr(b, a.Value)
		b.WriteByte('"')
	}
}

func escapeText(b *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			b.WriteRune(r)
		}
	}
}

func escapeAttr(b *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteRune(r)
		}
	}
}
