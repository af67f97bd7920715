package shared

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// LabelTable is a static bidirectional mapping between a variant and its label.
type LabelTable[T comparable] struct {
	kind    string
	labels  map[T]string
	reverse map[string]T
}

// NewLabelTable builds a table from variant→label pairs. Duplicate labels panic
// since tables are package-level declarations.
func NewLabelTable[T comparable](kind string, pairs map[T]string) LabelTable[T] {
	t := LabelTable[T]{
		kind:    kind,
		labels:  make(map[T]string, len(pairs)),
		reverse: make(map[string]T, len(pairs)),
	}
	for variant, label := range pairs {
		key := NormalizeLabel(label)
		if _, dup := t.reverse[key]; dup {
			panic("accounting: duplicate " + kind + " label " + label)
		}
		t.labels[variant] = label
		t.reverse[key] = variant
	}
	return t
}

// Label returns the label for v, or an empty string for an unknown variant.
func (t LabelTable[T]) Label(v T) string {
	return t.labels[v]
}

// Parse resolves a label to its variant.
func (t LabelTable[T]) Parse(label string) (T, error) {
	if v, ok := t.reverse[NormalizeLabel(label)]; ok {
		return v, nil
	}
	var zero T
	return zero, &UnknownVariantError{Kind: t.kind, Label: label}
}

// Has reports whether v has a label.
func (t LabelTable[T]) Has(v T) bool {
	_, ok := t.labels[v]
	return ok
}

// Kind names the variant family.
func (t LabelTable[T]) Kind() string {
	return t.kind
}

// NormalizeLabel folds width variants and composes characters so that
// half-width and full-width spellings resolve to the same entry.
func NormalizeLabel(label string) string {
	s := norm.NFKC.String(strings.TrimSpace(label))
	return width.Fold.String(s)
}
