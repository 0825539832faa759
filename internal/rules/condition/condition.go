// Package condition models trigger-condition trees and evaluates them
// against event payloads. A tree is either a SIMPLE comparison leaf or an
// AND/OR composite over sub-trees.
package condition

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Operator enumerates the comparison operators a SIMPLE node may use.
type Operator string

const (
	OpEquals              Operator = "EQUALS"
	OpNotEquals           Operator = "NOT_EQUALS"
	OpGreaterThan         Operator = "GREATER_THAN"
	OpGreaterThanOrEquals Operator = "GREATER_THAN_OR_EQUALS"
	OpLessThan            Operator = "LESS_THAN"
	OpLessThanOrEquals    Operator = "LESS_THAN_OR_EQUALS"
	OpContains            Operator = "CONTAINS"
	OpMatches             Operator = "MATCHES"
	OpIn                  Operator = "IN"
	OpNotIn               Operator = "NOT_IN"
)

// KnownOperator reports whether op is part of the supported set.
func KnownOperator(op Operator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpGreaterThanOrEquals,
		OpLessThan, OpLessThanOrEquals, OpContains, OpMatches, OpIn, OpNotIn:
		return true
	}
	return false
}

// Node is a trigger-condition tree node.
type Node interface {
	isNode()
}

// Simple compares one event field against an expected value.
type Simple struct {
	Field    string
	Operator Operator
	Value    any
}

// And is satisfied when every child is satisfied.
type And struct {
	Children []Node
}

// Or is satisfied when at least one child is satisfied.
type Or struct {
	Children []Node
}

func (Simple) isNode() {}
func (And) isNode()    {}
func (Or) isNode()     {}

const (
	typeSimple = "SIMPLE"
	typeAnd    = "AND"
	typeOr     = "OR"
)

type nodeEnvelope struct {
	Type       string            `json:"type"`
	Field      string            `json:"field,omitempty"`
	Operator   Operator          `json:"operator,omitempty"`
	Value      any               `json:"value,omitempty"`
	Conditions []json.RawMessage `json:"conditions,omitempty"`
}

// Decode parses a persisted condition document into its tree form,
// enforcing the structural invariants: composites are non-empty, leaves
// carry a field and a known operator.
func Decode(raw []byte) (Node, error) {
	var env nodeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("condition: decode node: %w", err)
	}
	switch env.Type {
	case typeSimple:
		if env.Field == "" {
			return nil, errors.New("condition: SIMPLE node requires a field")
		}
		if !KnownOperator(env.Operator) {
			return nil, fmt.Errorf("condition: unsupported operator %q", env.Operator)
		}
		return Simple{Field: env.Field, Operator: env.Operator, Value: env.Value}, nil
	case typeAnd, typeOr:
		if len(env.Conditions) == 0 {
			return nil, fmt.Errorf("condition: %s node requires at least one sub-condition", env.Type)
		}
		children := make([]Node, 0, len(env.Conditions))
		for _, rawChild := range env.Conditions {
			child, err := Decode(rawChild)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if env.Type == typeAnd {
			return And{Children: children}, nil
		}
		return Or{Children: children}, nil
	default:
		return nil, fmt.Errorf("condition: unknown node type %q", env.Type)
	}
}

// Encode serializes a tree back to its persisted document form.
func Encode(node Node) ([]byte, error) {
	doc, err := toDocument(node)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("condition: encode node: %w", err)
	}
	return out, nil
}

func toDocument(node Node) (map[string]any, error) {
	switch n := node.(type) {
	case Simple:
		return map[string]any{
			"type":     typeSimple,
			"field":    n.Field,
			"operator": n.Operator,
			"value":    n.Value,
		}, nil
	case And:
		children, err := childDocuments(n.Children)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": typeAnd, "conditions": children}, nil
	case Or:
		children, err := childDocuments(n.Children)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": typeOr, "conditions": children}, nil
	default:
		return nil, fmt.Errorf("condition: unknown node %T", node)
	}
}

func childDocuments(children []Node) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(children))
	for _, child := range children {
		doc, err := toDocument(child)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}
