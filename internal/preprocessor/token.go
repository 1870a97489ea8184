package preprocessor

import "fmt"

// ---------------- Tokens ----------------

type TokenKind uint8

const (
	KindNone TokenKind = iota
	KindEOF
	KindLineBreak
	KindNumber
	KindString
	KindIdent
	KindSpace
	KindPunct
	KindConcat       // ##
	KindPrescanIdent // identifier inside a macro body
	KindDotDotDot
	KindOther
	KindHash
)

var kindNames = [...]string{
	KindNone:         "none",
	KindEOF:          "eof",
	KindLineBreak:    "line-break",
	KindNumber:       "number",
	KindString:       "string",
	KindIdent:        "ident",
	KindSpace:        "space",
	KindPunct:        "punct",
	KindConcat:       "concat",
	KindPrescanIdent: "prescan-ident",
	KindDotDotDot:    "dot-dot-dot",
	KindOther:        "other",
	KindHash:         "hash",
}

func (k TokenKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

func (k TokenKind) isIdent() bool { return k == KindIdent || k == KindPrescanIdent }

func (k TokenKind) isBlank() bool { return k == KindSpace || k == KindLineBreak }

type TokenFlags uint8

const (
	FlagCustomText TokenFlags = 1 << iota
	FlagMissingTrailingLineBreak
	FlagPoisoned
)

// Token is one lexical unit. Tokens are never copied by value once they are
// handed out; derived tokens point at the token they were copied from.
type Token struct {
	Kind  TokenKind
	flags TokenFlags

	set    *TokenSet
	index  int
	parent *Token
	text   string
	hs     *Hideset
}

// Text returns the spelling of the token, walking up the parent chain until a
// custom text or a file region is found.
func (t *Token) Text() string {
	for cur := t; cur != nil; cur = cur.parent {
		switch {
		case cur.Kind == KindLineBreak:
			return "\n"
		case cur.flags&FlagCustomText != 0:
			return cur.text
		case cur.set != nil && cur.set.source == SourceFile:
			r := cur.set.file.regions[cur.index]
			return cur.set.file.Text[r.start:r.end]
		}
	}
	return ""
}

// Flags reports the token's own flags plus those of its ancestors. Custom
// text is not inherited.
func (t *Token) Flags() TokenFlags {
	f := t.flags
	for p := t.parent; p != nil; p = p.parent {
		f |= p.flags &^ FlagCustomText
	}
	return f
}

func (t *Token) Poisoned() bool { return t.Flags()&FlagPoisoned != 0 }

func (t *Token) Parent() *Token { return t.parent }

// Set is the leaf set this token belongs to, nil for free tokens.
func (t *Token) Set() *TokenSet { return t.set }

func (t *Token) Index() int { return t.index }

func (t *Token) Hideset() *Hideset { return t.hs }

func (t *Token) String() string {
	return fmt.Sprintf("%s(%q)", t.Kind, t.Text())
}

// Source is the provenance kind of the set owning t.
func (t *Token) Source() SourceKind {
	if t.set == nil {
		return SourceNone
	}
	return t.set.source
}

// fileToken walks up to the token lexed from a file.
func (t *Token) fileToken() *Token {
	for cur := t; cur != nil; cur = cur.parent {
		if cur.set != nil && cur.set.source == SourceFile {
			return cur
		}
	}
	return nil
}

// includedFile finds the include site whose walk produced t.
func (t *Token) includedFile() *IncludedFile {
	for cur := t; cur != nil; cur = cur.parent {
		if cur.set != nil && cur.set.source == SourceIncludedFile {
			return cur.set.included
		}
	}
	return nil
}

// ---------------- Arena ----------------

const arenaChunk = 1024

// tokenArena hands out tokens from fixed chunks so that a session allocates
// in bulk; tokens live as long as the session.
type tokenArena struct {
	chunk []Token
	count int
}

func (a *tokenArena) alloc() *Token {
	if len(a.chunk) == 0 {
		a.chunk = make([]Token, arenaChunk)
	}
	t := &a.chunk[0]
	a.chunk = a.chunk[1:]
	a.count++
	return t
}

func (a *tokenArena) newToken(kind TokenKind) *Token {
	t := a.alloc()
	t.Kind = kind
	t.index = -1
	return t
}

// derive copies parent into a fresh token that resolves its text through
// parent.
func (a *tokenArena) derive(parent *Token, hs *Hideset) *Token {
	t := a.newToken(parent.Kind)
	t.parent = parent
	t.hs = hs
	return t
}

// synth creates a token with its own text, anchored to parent for provenance.
func (a *tokenArena) synth(kind TokenKind, text string, parent *Token, hs *Hideset) *Token {
	t := a.newToken(kind)
	t.flags |= FlagCustomText
	t.text = text
	t.parent = parent
	t.hs = hs
	return t
}
