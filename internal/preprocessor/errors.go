package preprocessor

import (
	"fmt"
	"path/filepath"
)

// ---------------- Errors ----------------

// FileError blames one region of one file. Either Token is set, or File
// together with an original-text range.
type FileError struct {
	Msg   string
	Token *Token

	File       *FileSource
	Start, End int

	Err error
}

func newTokenError(tok *Token, format string, args ...any) *FileError {
	return &FileError{Msg: fmt.Sprintf(format, args...), Token: tok}
}

func newRangeError(f *FileSource, ogStart, ogEnd int, format string, args ...any) *FileError {
	return &FileError{Msg: fmt.Sprintf(format, args...), File: f, Start: ogStart, End: ogEnd}
}

// Location resolves the blamed region to original-text offsets. f is nil when
// the token has no file provenance.
func (e *FileError) Location() (f *FileSource, start, end int) {
	if e.File != nil {
		return e.File, e.Start, e.End
	}
	return tokenLocation(e.Token)
}

func (e *FileError) Error() string {
	return withPosition(e.Msg, e.Location)
}

func (e *FileError) Unwrap() error { return e.Err }

func tokenLocation(tok *Token) (f *FileSource, start, end int) {
	if tok == nil {
		return nil, 0, 0
	}
	ft := tok.fileToken()
	if ft == nil {
		return nil, 0, 0
	}
	f = ft.set.file
	r := f.regions[ft.index]
	start, end = f.OriginalRange(r.start, r.end)
	return f, start, end
}

func withPosition(msg string, loc func() (*FileSource, int, int)) string {
	f, start, _ := loc()
	if f == nil {
		return msg
	}
	line, col := f.LineCol(start)
	return fmt.Sprintf("%s:%d:%d: %s", shortPath(f.FullPath), line, col, msg)
}

func shortPath(p string) string {
	if p == "" || p[0] == '<' {
		return p
	}
	return filepath.Base(p)
}

// DetailedError is a diagnostic made of free text and token printers.
type DetailedError struct {
	Msg   string
	Nodes []ErrorNode
}

// ErrorNode is either Text or a Printer.
type ErrorNode struct {
	Text    string
	Printer *DetailedPrinter
}

// DetailedPrinter renders Tokens with Spans highlighted. With ExpandSite, every
// expanded zone is followed by the story of where it came from.
type DetailedPrinter struct {
	Tokens     Slice
	Spans      []Span
	ExpandSite bool
}

// Span is a [Start,End) token range of the printer's slice.
type Span struct {
	Start, End int
	Color      Color
}

func newDetailedError(format string, args ...any) *DetailedError {
	return &DetailedError{Msg: fmt.Sprintf(format, args...)}
}

func (e *DetailedError) text(s string) *DetailedError {
	e.Nodes = append(e.Nodes, ErrorNode{Text: s})
	return e
}

func (e *DetailedError) printer(tokens Slice, expandSite bool, spans ...Span) *DetailedError {
	e.Nodes = append(e.Nodes, ErrorNode{Printer: &DetailedPrinter{Tokens: tokens, Spans: spans, ExpandSite: expandSite}})
	return e
}

func (e *DetailedError) Error() string {
	return withPosition(e.Msg, func() (*FileSource, int, int) {
		for _, n := range e.Nodes {
			if n.Printer == nil || len(n.Printer.Spans) == 0 {
				continue
			}
			return tokenLocation(n.Printer.Tokens.Get(n.Printer.Spans[0].Start))
		}
		return nil, 0, 0
	})
}
