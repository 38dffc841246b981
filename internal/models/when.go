package models

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// WhenClause gates rule applicability. Three shapes are accepted:
//
//	when: {os.id: debian}                 equality predicates, all must hold
//	when: {any: [{os.id: debian}, ...]}   any/all combinators, nestable
//	when: {expr: 'os.id == "debian"'}     CEL expression
type WhenClause struct {
	Expr   string
	Any    []WhenClause
	All    []WhenClause
	Equals map[string]MatchValue
}

func (w *WhenClause) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("when must be a mapping")
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]
		var key string
		if err := keyNode.Decode(&key); err != nil {
			return err
		}
		switch key {
		case "expr":
			if err := valNode.Decode(&w.Expr); err != nil {
				return err
			}
		case "any":
			if err := valNode.Decode(&w.Any); err != nil {
				return err
			}
		case "all":
			if err := valNode.Decode(&w.All); err != nil {
				return err
			}
		default:
			var mv MatchValue
			if err := valNode.Decode(&mv); err != nil {
				return err
			}
			if w.Equals == nil {
				w.Equals = make(map[string]MatchValue)
			}
			w.Equals[key] = mv
		}
	}
	return nil
}

// MatchValue is the expected side of an equality predicate: a scalar,
// a list (any-of), or {regexp: pattern}.
type MatchValue struct {
	Values []string
	Regexp string
}

func (m *MatchValue) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		m.Values = []string{s}
		return nil
	case yaml.SequenceNode:
		return value.Decode(&m.Values)
	case yaml.MappingNode:
		var aux struct {
			Regexp string `yaml:"regexp"`
			Eq     string `yaml:"eq"`
		}
		if err := value.Decode(&aux); err != nil {
			return err
		}
		if aux.Regexp != "" {
			m.Regexp = aux.Regexp
			return nil
		}
		if aux.Eq != "" {
			m.Values = []string{aux.Eq}
			return nil
		}
		return fmt.Errorf("match value mapping needs 'regexp' or 'eq'")
	}
	return fmt.Errorf("unsupported match value (yaml kind %d)", value.Kind)
}
