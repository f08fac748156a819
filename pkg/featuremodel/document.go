// Package featuremodel parses structural feature-model documents and
// compiles them into boolean decision variables plus propositional
// constraints.
package featuremodel

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrMalformed is returned for documents that cannot be parsed
	ErrMalformed = errors.New("malformed feature model")
	// ErrUnknownFeature is returned in strict mode for edges naming undeclared features
	ErrUnknownFeature = errors.New("edge references unknown feature")
)

// GroupKind distinguishes group semantics
type GroupKind int

const (
	// Alternative groups select exactly one member
	Alternative GroupKind = iota
	// Or groups select at least one member
	Or
)

func (k GroupKind) String() string {
	if k == Or {
		return "or"
	}
	return "alt"
}

// Group is a group declaration and the names of its direct feature children
type Group struct {
	Kind    GroupKind
	Name    string // the group node's own name attribute, if any
	Members []string
}

// Edge is a cross-tree constraint between two named features
type Edge struct {
	A string `yaml:"a"`
	B string `yaml:"b"`
}

// Document is the raw structure of a feature model: every declared name,
// every group and every cross-tree edge, before variable allocation.
// A Document is immutable once parsed.
type Document struct {
	features map[string]struct{}
	Groups   []Group
	Requires []Edge
	Excludes []Edge
}

func newDocument() *Document {
	return &Document{features: make(map[string]struct{})}
}

func (d *Document) declare(name string) {
	d.features[name] = struct{}{}
}

// Features returns every distinct declared name in lexicographic order
func (d *Document) Features() []string {
	names := make([]string, 0, len(d.features))
	for name := range d.features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declares reports whether name is a declared feature
func (d *Document) Declares(name string) bool {
	_, ok := d.features[name]
	return ok
}

// Format selects the document syntax
type Format int

const (
	FormatXML Format = iota
	FormatYAML
)

// FormatForPath picks a format from a file extension; XML is the default
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatXML
	}
}

// Parse decodes a document in the given format
func Parse(data []byte, format Format) (*Document, error) {
	if format == FormatYAML {
		return ParseYAML(data)
	}
	return ParseXML(bytes.NewReader(data))
}

type xmlFrame struct {
	group int // index into Document.Groups, or -1
}

// ParseXML decodes the XML form. Any element carrying a name attribute
// declares a feature; <alt> and <or> elements collect their direct
// <feature name=".."> children; <requires> and <excludes> carry a and b
// attributes.
func ParseXML(r io.Reader) (*Document, error) {
	doc := newDocument()
	dec := xml.NewDecoder(r)
	stack := make([]xmlFrame, 0, 16)
	sawRoot := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			sawRoot = true
			name, hasName := attr(el, "name")
			if hasName {
				doc.declare(name)
			}

			if n := len(stack); n > 0 && stack[n-1].group >= 0 && el.Name.Local == "feature" && hasName {
				g := &doc.Groups[stack[n-1].group]
				g.Members = append(g.Members, name)
			}

			frame := xmlFrame{group: -1}
			switch el.Name.Local {
			case "alt":
				doc.Groups = append(doc.Groups, Group{Kind: Alternative, Name: name})
				frame.group = len(doc.Groups) - 1
			case "or":
				doc.Groups = append(doc.Groups, Group{Kind: Or, Name: name})
				frame.group = len(doc.Groups) - 1
			case "requires":
				doc.Requires = append(doc.Requires, edgeFromAttrs(el))
			case "excludes":
				doc.Excludes = append(doc.Excludes, edgeFromAttrs(el))
			}
			stack = append(stack, frame)

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("%w: no root element", ErrMalformed)
	}
	return doc, nil
}

func attr(el xml.StartElement, key string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Local == key {
			return a.Value, true
		}
	}
	return "", false
}

func edgeFromAttrs(el xml.StartElement) Edge {
	a, _ := attr(el, "a")
	b, _ := attr(el, "b")
	return Edge{A: a, B: b}
}
