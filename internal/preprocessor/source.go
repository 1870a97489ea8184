package preprocessor

import (
	"sort"
	"strings"
)

// ---------------- File sources ----------------

// FileSource is one source document: the text as loaded, the cleaned text the
// lexer sees, and the tables that map cleaned offsets back to the original.
type FileSource struct {
	FullPath string
	Original string
	Text     string

	SpliceMap  []Mapping
	CommentMap []Mapping

	normalized bool
	regions    []region
	tokens     *TokenSet
}

type region struct{ start, end int }

func NewFileSource(fullPath, text string) *FileSource {
	return &FileSource{FullPath: fullPath, Original: text}
}

// Tokens returns the file's leaf set, nil before tokenization.
func (f *FileSource) Tokens() *TokenSet { return f.tokens }

// Region returns the cleaned-text byte range of the i-th file token.
func (f *FileSource) Region(i int) (start, end int) {
	r := f.regions[i]
	return r.start, r.end
}

// OriginalOffset maps an offset in the cleaned text back to the loaded text.
func (f *FileSource) OriginalOffset(idx int) int {
	return MapIndex(f.SpliceMap, MapIndex(f.CommentMap, idx))
}

// OriginalRange maps a cleaned [start,end) range to the loaded text. The end is
// mapped through its last byte so text removed right after the range stays
// outside of it.
func (f *FileSource) OriginalRange(start, end int) (int, int) {
	ogStart := f.OriginalOffset(start)
	if end <= start {
		return ogStart, ogStart
	}
	return ogStart, f.OriginalOffset(end-1) + 1
}

// LineCol returns the 1-based line and column of an original offset.
func (f *FileSource) LineCol(ogOffset int) (line, col int) {
	ogOffset = min(max(ogOffset, 0), len(f.Original))
	before := f.Original[:ogOffset]
	line = strings.Count(before, "\n") + 1
	col = ogOffset - (strings.LastIndexByte(before, '\n') + 1) + 1
	return line, col
}

// ---------------- Mappings ----------------

// Mapping is one unaffected run: cleaned [Start,Start+Length) came from
// original [RealStart,RealStart+Length).
type Mapping struct {
	Start, RealStart, Length int
}

// MapIndex translates a cleaned offset through m. Runs are contiguous in
// cleaned space, so offsets past the last run map to the end of that run. An
// empty table is the identity.
func MapIndex(m []Mapping, idx int) int {
	if len(m) == 0 {
		return idx
	}
	i := sort.Search(len(m), func(i int) bool { return m[i].Start+m[i].Length > idx })
	if i < len(m) && m[i].Start <= idx {
		return idx - m[i].Start + m[i].RealStart
	}
	last := m[len(m)-1]
	return last.RealStart + last.Length
}

type remover struct {
	out      strings.Builder
	mappings []Mapping
	removed  int
}

// keep copies src[cursor:end] and records the run.
func (r *remover) keep(src string, cursor, end int) {
	if end <= cursor {
		return
	}
	r.out.WriteString(src[cursor:end])
	r.mappings = append(r.mappings, Mapping{Start: cursor - r.removed, RealStart: cursor, Length: end - cursor})
}

// ---------------- Normalizer ----------------

// Normalize splices continued lines and strips comments. The returned maps
// translate offsets in clean back to raw (comment map first, then splice map).
// An unterminated block comment is reported with its original offset.
func Normalize(raw string) (clean string, splice, comment []Mapping, err error) {
	spliced, splice := removeSplices(raw)
	clean, comment, unclosed := removeComments(spliced)
	if unclosed >= 0 {
		return "", splice, comment, &normalizeError{offset: MapIndex(splice, unclosed)}
	}
	return clean, splice, comment, nil
}

type normalizeError struct{ offset int }

func (e *normalizeError) Error() string { return "unclosed block comment" }

func removeSplices(src string) (string, []Mapping) {
	r := &remover{}
	cursor := 0
	for i := 0; i < len(src); i++ {
		if src[i] != '\\' {
			continue
		}
		j := i + 1
		for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
			j++
		}
		lb := lineBreakLen(src, j)
		if lb == 0 && j < len(src) {
			continue
		}
		r.keep(src, cursor, i)
		r.removed += j + lb - i
		cursor = j + lb
		i = cursor - 1
	}
	r.keep(src, cursor, len(src))
	return r.out.String(), r.mappings
}

// removeComments strips // and nested /* */ comments, leaving literals alone.
// It returns the offset of an unclosed block comment, or -1.
func removeComments(src string) (string, []Mapping, int) {
	r := &remover{}
	cursor := 0
	for i := 0; i < len(src); {
		switch c := src[i]; {
		case c == '"' || c == '\'':
			i = skipQuoted(src, i)
		case strings.HasPrefix(src[i:], "//"):
			end := i + 2
			for end < len(src) && lineBreakLen(src, end) == 0 {
				end++
			}
			r.keep(src, cursor, i)
			r.removed += end - i
			cursor, i = end, end
		case strings.HasPrefix(src[i:], "/*"):
			depth, end := 1, i+2
			for end < len(src) && depth > 0 {
				switch {
				case strings.HasPrefix(src[end:], "/*"):
					depth++
					end += 2
				case strings.HasPrefix(src[end:], "*/"):
					depth--
					end += 2
				default:
					end++
				}
			}
			if depth > 0 {
				return "", r.mappings, i
			}
			r.keep(src, cursor, i)
			r.removed += end - i
			cursor, i = end, end
		default:
			i++
		}
	}
	r.keep(src, cursor, len(src))
	return r.out.String(), r.mappings, -1
}

// skipQuoted returns the offset after the literal opened at i. A quote that is
// not closed on its line is an ordinary character, so only it is skipped.
func skipQuoted(src string, i int) int {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch {
		case src[j] == '\\' && lineBreakLen(src, j+1) == 0:
			j++
		case src[j] == quote:
			return j + 1
		case lineBreakLen(src, j) > 0:
			return i + 1
		}
	}
	return i + 1
}

func lineBreakLen(src string, i int) int {
	if i >= len(src) {
		return 0
	}
	switch src[i] {
	case '\n':
		return 1
	case '\r':
		if i+1 < len(src) && src[i+1] == '\n' {
			return 2
		}
		return 1
	}
	return 0
}
