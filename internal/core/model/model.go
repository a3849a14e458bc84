// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Binding kinds as they appear in SPARQL result sets.
const (
	KindURI          = "uri"
	KindLiteral      = "literal"
	KindTypedLiteral = "typed-literal"
	KindBNode        = "bnode"
)

// RawBinding is one variable of one result row.
type RawBinding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

func (b RawBinding) IsLiteral() bool {
	return b.Type == KindLiteral || b.Type == KindTypedLiteral
}

type Row map[string]RawBinding

type ResultSet struct {
	Vars  []string
	Rows  []Row
	Count int
}

type FieldMapping struct {
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`
}

// SchemaMapping translates raw result keys to canonical document fields. The
// order of entries is preserved from the configuration file.
type SchemaMapping struct {
	Entries []FieldMapping
}

func NewSchemaMapping(pairs ...string) SchemaMapping {
	var m SchemaMapping
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Entries = append(m.Entries, FieldMapping{Source: pairs[i], Target: pairs[i+1]})
	}
	return m
}

func (m SchemaMapping) Lookup(source string) (string, bool) {
	for _, e := range m.Entries {
		if e.Source == source {
			return e.Target, true
		}
	}
	return "", false
}

func (m SchemaMapping) Len() int { return len(m.Entries) }

// UnmarshalYAML accepts either an ordered mapping ("subject: name") or a list
// of {source, target} entries.
func (m *SchemaMapping) UnmarshalYAML(n *yaml.Node) error {
	m.Entries = nil
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			src := strings.TrimSpace(n.Content[i].Value)
			dst := strings.TrimSpace(n.Content[i+1].Value)
			if src == "" || dst == "" {
				return fmt.Errorf("schema mapping line %d: empty source or target", n.Content[i].Line)
			}
			m.Entries = append(m.Entries, FieldMapping{Source: src, Target: dst})
		}
		return nil
	case yaml.SequenceNode:
		var list []FieldMapping
		if err := n.Decode(&list); err != nil {
			return fmt.Errorf("schema mapping list: %w", err)
		}
		for _, e := range list {
			if e.Source == "" || e.Target == "" {
				return fmt.Errorf("schema mapping entry %+v: empty source or target", e)
			}
		}
		m.Entries = list
		return nil
	default:
		return fmt.Errorf("schema mapping line %d: expected mapping or list", n.Line)
	}
}
