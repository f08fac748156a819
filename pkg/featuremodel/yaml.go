package featuremodel

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes the YAML form. It mirrors the XML rules: any mapping
// with a scalar "name" key declares a feature; "alt" and "or" keys hold
// sequences whose named items are group members; "requires" and
// "excludes" keys hold sequences of {a, b} mappings. Every other nested
// mapping or sequence is walked.
//
//	features:
//	  - name: Security
//	    alt:
//	      - name: MAC_32
//	      - name: MAC_64
//	constraints:
//	  requires:
//	    - {a: SecOC_Protection, b: Fresh_Counter}
func ParseYAML(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformed)
	}

	doc := newDocument()
	if err := walkYAML(doc, root.Content[0]); err != nil {
		return nil, err
	}
	return doc, nil
}

func walkYAML(doc *Document, n *yaml.Node) error {
	switch n.Kind {
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if err := walkYAML(doc, item); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		if name, ok := scalarValue(n, "name"); ok {
			doc.declare(name)
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i].Value, n.Content[i+1]
			var err error
			switch key {
			case "alt":
				err = yamlGroup(doc, Alternative, n, val)
			case "or":
				err = yamlGroup(doc, Or, n, val)
			case "requires":
				err = yamlEdges(val, &doc.Requires)
			case "excludes":
				err = yamlEdges(val, &doc.Excludes)
			default:
				if val.Kind == yaml.MappingNode || val.Kind == yaml.SequenceNode {
					err = walkYAML(doc, val)
				}
			}
			if err != nil {
				return err
			}
		}
	case yaml.AliasNode:
		return walkYAML(doc, n.Alias)
	}
	return nil
}

func yamlGroup(doc *Document, kind GroupKind, owner, val *yaml.Node) error {
	if val.Kind != yaml.SequenceNode {
		return fmt.Errorf("%w: line %d: %s group must be a sequence", ErrMalformed, val.Line, kind)
	}
	groupName, _ := scalarValue(owner, "name")
	g := Group{Kind: kind, Name: groupName}
	for _, item := range val.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		if name, ok := scalarValue(item, "name"); ok {
			g.Members = append(g.Members, name)
		}
	}
	doc.Groups = append(doc.Groups, g)
	return walkYAML(doc, val)
}

func yamlEdges(val *yaml.Node, dst *[]Edge) error {
	if val.Kind != yaml.SequenceNode {
		return fmt.Errorf("%w: line %d: edges must be a sequence", ErrMalformed, val.Line)
	}
	for _, item := range val.Content {
		var e Edge
		if err := item.Decode(&e); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrMalformed, item.Line, err)
		}
		*dst = append(*dst, e)
	}
	return nil
}

func scalarValue(m *yaml.Node, key string) (string, bool) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key && m.Content[i+1].Kind == yaml.ScalarNode {
			return m.Content[i+1].Value, true
		}
	}
	return "", false
}
