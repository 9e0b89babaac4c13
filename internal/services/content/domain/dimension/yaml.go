package dimension

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	keyDimensions      = "dimensions"
	keyDefault         = "default"
	keyValues          = "values"
	keySpecializations = "specializations"
	keyConstraints     = "constraints"
	wildcardKey        = "*"
)

// LoadFile reads and parses a dimension configuration file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dimension config: %w", err)
	}
	defer f.Close()
	return ParseYAML(f)
}

// ParseYAML parses a dimension configuration document:
//
//	dimensions:
//	  language:
//	    default: en
//	    values:
//	      en:
//	        specializations:
//	          en_US: {}
//	      de: {}
//	  market:
//	    default: world
//	    values:
//	      world: {}
//	      us:
//	        constraints:
//	          language:
//	            "*": false
//	            en_US: true
//
// Mapping order is significant: dimensions and values are prioritized in
// the order they appear, parents before their specializations.
func ParseYAML(r io.Reader) (*Catalog, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return NewCatalog()
		}
		return nil, fmt.Errorf("decode dimension config: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, configError(root, "top level must be a mapping")
	}
	if dims := mappingValue(root, keyDimensions); dims != nil {
		root = dims
		if root.Kind != yaml.MappingNode {
			return nil, configError(root, "dimensions must be a mapping")
		}
	}

	var dimensions []*Dimension
	for i := 0; i+1 < len(root.Content); i += 2 {
		d, err := parseDimension(root.Content[i].Value, root.Content[i+1])
		if err != nil {
			return nil, err
		}
		dimensions = append(dimensions, d)
	}
	return NewCatalog(dimensions...)
}

type parsedLink struct {
	parent string
	child  string
}

func parseDimension(id string, n *yaml.Node) (*Dimension, error) {
	if n.Kind != yaml.MappingNode {
		return nil, configError(n, fmt.Sprintf("dimension %q must be a mapping", id))
	}
	var defaultValue string
	if dn := mappingValue(n, keyDefault); dn != nil {
		defaultValue = dn.Value
	}

	var values []Value
	var links []parsedLink
	if vn := mappingValue(n, keyValues); vn != nil && !isNull(vn) {
		if vn.Kind != yaml.MappingNode {
			return nil, configError(vn, fmt.Sprintf("dimension %q values must be a mapping", id))
		}
		if err := collectValues(id, vn, "", &values, &links); err != nil {
			return nil, err
		}
	}

	d, err := New(id, values, defaultValue)
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		if err := d.RegisterSpecialization(link.parent, link.child); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func collectValues(dimensionID string, n *yaml.Node, parent string, values *[]Value, links *[]parsedLink) error {
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := n.Content[i].Value
		body := n.Content[i+1]
		value := Value{Value: name}

		if !isNull(body) {
			if body.Kind != yaml.MappingNode {
				return configError(body, fmt.Sprintf("dimension %q value %q must be a mapping", dimensionID, name))
			}
			if cn := mappingValue(body, keyConstraints); cn != nil && !isNull(cn) {
				constraints, err := parseConstraints(dimensionID, name, cn)
				if err != nil {
					return err
				}
				value.Constraints = constraints
			}
		}
		*values = append(*values, value)
		if parent != "" {
			*links = append(*links, parsedLink{parent: parent, child: name})
		}

		if isNull(body) {
			continue
		}
		if sn := mappingValue(body, keySpecializations); sn != nil && !isNull(sn) {
			if sn.Kind != yaml.MappingNode {
				return configError(sn, fmt.Sprintf("dimension %q value %q specializations must be a mapping", dimensionID, name))
			}
			if err := collectValues(dimensionID, sn, name, values, links); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseConstraints(dimensionID, value string, n *yaml.Node) (map[string]Constraints, error) {
	if n.Kind != yaml.MappingNode {
		return nil, configError(n, fmt.Sprintf("dimension %q value %q constraints must be a mapping", dimensionID, value))
	}
	out := make(map[string]Constraints, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		other := n.Content[i].Value
		rules := n.Content[i+1]
		if rules.Kind != yaml.MappingNode {
			return nil, configError(rules, fmt.Sprintf("constraints on %q must be a mapping", other))
		}
		c := Constraints{Wildcard: true, Identifiers: make(map[string]bool)}
		for j := 0; j+1 < len(rules.Content); j += 2 {
			var allowed bool
			if err := rules.Content[j+1].Decode(&allowed); err != nil {
				return nil, configError(rules.Content[j+1], fmt.Sprintf("constraint %q on %q must be a boolean", rules.Content[j].Value, other))
			}
			if rules.Content[j].Value == wildcardKey {
				c.Wildcard = allowed
				continue
			}
			c.Identifiers[rules.Content[j].Value] = allowed
		}
		out[other] = c
	}
	return out, nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

func configError(n *yaml.Node, msg string) error {
	return fmt.Errorf("line %d: %s: %w", n.Line, msg, ErrInvalidConfig)
}
