package h3mapper

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"
)

func parseCell(cell string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return 0, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid h3 cell %q", cell)
	}
	return c, nil
}

// ValidCell reports whether cell is a well-formed H3 index.
func (m *Mapper) ValidCell(cell string) bool {
	_, err := parseCell(cell)
	return err == nil
}

// Normalize maps cell onto the index resolution: a finer cell becomes its
// ancestor, a coarser one expands to its descendants.
func (m *Mapper) Normalize(cell string, indexRes int) ([]string, error) {
	if err := validateRes(indexRes); err != nil {
		return nil, err
	}
	c, err := parseCell(cell)
	if err != nil {
		return nil, err
	}

	cur := c.Resolution()
	switch {
	case cur == indexRes:
		return []string{c.String()}, nil
	case cur > indexRes:
		p, err := c.Parent(indexRes)
		if err != nil {
			return nil, fmt.Errorf("h3 parent: %w", err)
		}
		return []string{p.String()}, nil
	}

	kids, err := c.Children(indexRes)
	if err != nil {
		return nil, fmt.Errorf("h3 children: %w", err)
	}
	out := make([]string, 0, len(kids))
	for _, k := range kids {
		out = append(out, k.String())
	}
	sort.Strings(out)
	return out, nil
}
