package preprocessor

import (
	"sort"
	"strings"
)

// ---------------- Token sets ----------------

// SourceKind records which pipeline stage produced a leaf set.
type SourceKind uint8

const (
	SourceNone SourceKind = iota
	SourceFile
	SourceStringize
	SourceMacro
	SourceConcat
	SourceConcatResidue
	SourcePrescan
	SourceIncludedFile
	SourceMacroDef
	SourceDefined
)

var sourceNames = [...]string{
	SourceNone:          "none",
	SourceFile:          "file",
	SourceStringize:     "stringize",
	SourceMacro:         "macro",
	SourceConcat:        "concat",
	SourceConcatResidue: "concat-residue",
	SourcePrescan:       "prescan",
	SourceIncludedFile:  "included-file",
	SourceMacroDef:      "macro-def",
	SourceDefined:       "defined",
}

func (s SourceKind) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return "unknown"
}

// TokenSet is either a leaf (owns tokens) or a parent (owns slices of other
// sets). Sets are sealed by a builder and never change afterwards.
type TokenSet struct {
	source SourceKind
	leaf   bool

	tokens   []*Token
	children []Slice
	offsets  []int // offsets[i] is the logical start of children[i]
	count    int

	file     *FileSource
	included *IncludedFile
	exp      *MacroExpansion
	macro    *Macro
	concat   *ConcatRecord

	ix indexer
}

func (s *TokenSet) Len() int { return s.count }

func (s *TokenSet) IsLeaf() bool { return s.leaf }

func (s *TokenSet) Source() SourceKind { return s.source }

func (s *TokenSet) File() *FileSource { return s.file }

func (s *TokenSet) Included() *IncludedFile { return s.included }

func (s *TokenSet) Expansion() *MacroExpansion { return s.exp }

// All returns a slice over the whole set.
func (s *TokenSet) All() Slice { return Slice{Set: s, Start: 0, End: s.count} }

func (s *TokenSet) at(idx int) *Token {
	if idx < 0 || idx >= s.count {
		return nil
	}
	if s.leaf {
		return s.tokens[idx]
	}
	return s.ix.resolve(s, idx)
}

// ConcatRecord keeps both operands of a ## paste for diagnostics.
type ConcatRecord struct {
	Lhs, Rhs *Token
	Op       *Token
}

// ---------------- Slices ----------------

// Slice is a view [Start,End) into a token set.
type Slice struct {
	Set        *TokenSet
	Start, End int
}

func (s Slice) Len() int { return s.End - s.Start }

func (s Slice) Empty() bool { return s.End <= s.Start }

// norm maps a negative index to an index counted from the end.
func (s Slice) norm(i int) int {
	if i < 0 {
		i += s.Len()
	}
	return i
}

// Get returns the i-th token of the slice; negative indices count from the
// end. Out-of-range indices yield nil.
func (s Slice) Get(i int) *Token {
	i = s.norm(i)
	if s.Set == nil || i < 0 || i >= s.Len() {
		return nil
	}
	return s.Set.at(s.Start + i)
}

// Kind is Get(i).Kind, with EOF standing in for out-of-range indices.
func (s Slice) Kind(i int) TokenKind {
	if t := s.Get(i); t != nil {
		return t.Kind
	}
	return KindEOF
}

// Sub returns the sub-slice [from,to) relative to s. Negative bounds count
// from the end.
func (s Slice) Sub(from, to int) Slice {
	from, to = s.norm(from), s.norm(to)
	from = min(max(from, 0), s.Len())
	to = min(max(to, from), s.Len())
	return Slice{Set: s.Set, Start: s.Start + from, End: s.Start + to}
}

func (s Slice) From(from int) Slice { return s.Sub(from, s.Len()) }

// Tokens materializes the slice.
func (s Slice) Tokens() []*Token {
	out := make([]*Token, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		out = append(out, s.Get(i))
	}
	return out
}

// Text flattens the slice into its spelling.
func (s Slice) Text() string {
	var b strings.Builder
	for i := 0; i < s.Len(); i++ {
		b.WriteString(s.Get(i).Text())
	}
	return b.String()
}

// trimBlank drops leading and trailing spaces and line breaks.
func (s Slice) trimBlank() Slice {
	from, to := 0, s.Len()
	for from < to && s.Kind(from).isBlank() {
		from++
	}
	for to > from && s.Kind(to-1).isBlank() {
		to--
	}
	return s.Sub(from, to)
}

// ---------------- Builders ----------------

// LeafBuilder collects fresh tokens for a leaf set.
type LeafBuilder struct {
	source SourceKind
	tokens []*Token
}

func newLeafBuilder(source SourceKind, hint int) *LeafBuilder {
	return &LeafBuilder{source: source, tokens: make([]*Token, 0, hint)}
}

func (b *LeafBuilder) Add(t *Token) {
	b.tokens = append(b.tokens, t)
}

func (b *LeafBuilder) Len() int { return len(b.tokens) }

// Seal assigns every token to the new set. A token can only ever join one
// set.
func (b *LeafBuilder) Seal() *TokenSet {
	set := &TokenSet{source: b.source, leaf: true, tokens: b.tokens, count: len(b.tokens)}
	for i, t := range b.tokens {
		if t.set != nil {
			panic("preprocessor: token " + t.String() + " already belongs to a token set")
		}
		t.set = set
		t.index = i
	}
	b.tokens = nil
	return set
}

// ParentBuilder composes slices of other sets without copying tokens.
type ParentBuilder struct {
	source   SourceKind
	children []Slice
	count    int
}

func newParentBuilder(source SourceKind) *ParentBuilder {
	return &ParentBuilder{source: source}
}

// Add appends s; a slice continuing the previous one is merged into it.
func (b *ParentBuilder) Add(s Slice) {
	if s.Empty() {
		return
	}
	if n := len(b.children); n > 0 {
		last := &b.children[n-1]
		if last.Set == s.Set && last.End == s.Start {
			last.End = s.End
			b.count += s.Len()
			return
		}
	}
	b.children = append(b.children, s)
	b.count += s.Len()
}

// AddToken appends a single token that already belongs to a set.
func (b *ParentBuilder) AddToken(t *Token) {
	b.Add(Slice{Set: t.set, Start: t.index, End: t.index + 1})
}

func (b *ParentBuilder) Len() int { return b.count }

// Seal returns a slice over a new parent set. The builder stays usable, so
// the session can snapshot its output more than once.
func (b *ParentBuilder) Seal() Slice {
	set := &TokenSet{source: b.source, count: b.count}
	set.children = append([]Slice(nil), b.children...)
	set.offsets = make([]int, len(set.children))
	off := 0
	for i, c := range set.children {
		set.offsets[i] = off
		off += c.Len()
	}
	return set.All()
}

// ---------------- Indexer ----------------

// indexer caches the last resolved leaf window of a parent set, so forward
// scans resolve in O(1) and only misses pay for the descent.
type indexer struct {
	valid  bool
	lo, hi int // window in the parent's logical index space
	leaf   *TokenSet
	offset int // leaf index of position lo
}

func (ix *indexer) resolve(root *TokenSet, idx int) *Token {
	if ix.valid && idx >= ix.lo && idx < ix.hi {
		return ix.leaf.tokens[ix.offset+idx-ix.lo]
	}
	set, setOff := root, 0
	lo, hi := 0, root.count
	for !set.leaf {
		pos := idx - lo + setOff
		i := sort.Search(len(set.offsets), func(i int) bool { return set.offsets[i] > pos }) - 1
		child := set.children[i]
		cLo := set.offsets[i] - setOff + lo
		cHi := cLo + child.Len()
		nLo, nHi := max(lo, cLo), min(hi, cHi)
		setOff = child.Start + (nLo - cLo)
		set, lo, hi = child.Set, nLo, nHi
	}
	ix.valid, ix.lo, ix.hi, ix.leaf, ix.offset = true, lo, hi, set, setOff
	return set.tokens[setOff+idx-lo]
}
