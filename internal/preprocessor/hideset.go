package preprocessor

import (
	"strings"

	"github.com/emirpasic/gods/sets/treeset"
)

// Hideset is the set of macro names a token must not be expanded by. The nil
// *Hideset is the empty set; hidesets are never mutated once built.
type Hideset struct {
	names *treeset.Set
}

func newHideset(names ...string) *Hideset {
	if len(names) == 0 {
		return nil
	}
	s := treeset.NewWithStringComparator()
	for _, n := range names {
		s.Add(n)
	}
	return &Hideset{names: s}
}

func (h *Hideset) Len() int {
	if h == nil {
		return 0
	}
	return h.names.Size()
}

func (h *Hideset) Contains(name string) bool {
	return h != nil && h.names.Contains(name)
}

// Names returns the members in sorted order.
func (h *Hideset) Names() []string {
	if h == nil {
		return nil
	}
	out := make([]string, 0, h.names.Size())
	it := h.names.Iterator()
	for it.Next() {
		out = append(out, it.Value().(string))
	}
	return out
}

// With returns h plus name.
func (h *Hideset) With(name string) *Hideset {
	if h.Contains(name) {
		return h
	}
	return newHideset(append(h.Names(), name)...)
}

func (h *Hideset) Union(o *Hideset) *Hideset {
	switch {
	case o.Len() == 0:
		return h
	case h.Len() == 0:
		return o
	}
	return newHideset(append(h.Names(), o.Names()...)...)
}

func (h *Hideset) Intersect(o *Hideset) *Hideset {
	if h.Len() == 0 || o.Len() == 0 {
		return nil
	}
	var common []string
	for _, n := range h.Names() {
		if o.Contains(n) {
			common = append(common, n)
		}
	}
	return newHideset(common...)
}

func (h *Hideset) String() string {
	return "{" + strings.Join(h.Names(), ", ") + "}"
}
