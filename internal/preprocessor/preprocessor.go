package preprocessor

import (
	"os"

	"github.com/sirupsen/logrus"
)

// ---------------- Preprocessor ----------------

// RootFileName names the document handed to Preprocess.
const RootFileName = "<root_file>"

// DefaultMaxExpansionDepth bounds how deeply macro expansions may nest.
const DefaultMaxExpansionDepth = 256

// Preprocessor is one preprocessing session. Macros, loaded files and the
// output accumulate across PreprocessFile calls.
type Preprocessor struct {
	Resolver          Resolver
	Loader            Loader
	Log               *logrus.Entry
	MaxExpansionDepth int

	arena  tokenArena
	files  map[string]*FileSource
	macros map[string]*Macro
	cur    *IncludedFile
	exp    *MacroExpansion
	ifs    condStack
	out    *ParentBuilder
}

func NewPreprocessor() *Preprocessor {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	return &Preprocessor{
		Resolver:          IdentityResolver,
		Loader:            DiskLoader{},
		Log:               logrus.NewEntry(logger),
		MaxExpansionDepth: DefaultMaxExpansionDepth,
		files:             map[string]*FileSource{},
		macros:            map[string]*Macro{},
		out:               newParentBuilder(SourceNone),
	}
}

// PreprocessFile runs f as a top-level document and appends its output.
func (p *Preprocessor) PreprocessFile(f *FileSource) error {
	if _, ok := p.files[f.FullPath]; !ok {
		p.files[f.FullPath] = f
	}
	return p.preprocessFile(f, nil, nil)
}

func (p *Preprocessor) preprocessFile(f *FileSource, parent *IncludedFile, site *Token) error {
	fileToks, err := p.Tokenize(f)
	if err != nil {
		return err
	}

	inc := &IncludedFile{Parent: parent, File: f, Site: site}
	b := newLeafBuilder(SourceIncludedFile, fileToks.Len())
	for i := 0; i < fileToks.Len(); i++ {
		b.Add(p.arena.derive(fileToks.Get(i), nil))
	}
	set := b.Seal()
	set.included = inc
	inc.Tokens = set.All()

	prev := p.cur
	p.cur = inc
	defer func() { p.cur = prev }()

	log := p.Log.WithFields(logrus.Fields{"file": f.FullPath, "depth": inc.Depth()})
	log.Trace("enter file")
	defer log.Trace("leave file")

	baseDepth := p.ifs.Depth()
	toks := inc.Tokens
	for i := 0; ; {
		t := toks.Get(i)
		switch {
		case t.Kind == KindHash:
			if i, err = p.handleDirective(inc, toks, i); err != nil {
				return err
			}
		case t.Kind == KindEOF:
			if p.ifs.Depth() > baseDepth {
				return newTokenError(p.ifs.Unclosed(), "#if is not closed")
			}
			return nil
		case !p.ifs.Active():
			i++
		case t.Kind.isIdent():
			exp, next, err := p.tryExpand(toks, i)
			if err != nil {
				return err
			}
			if exp == nil {
				p.out.AddToken(t)
				i++
				continue
			}
			p.out.Add(exp.AfterRescan)
			i = next
		default:
			p.out.AddToken(t)
			i++
		}
	}
}

// Output snapshots the tokens produced so far.
func (p *Preprocessor) Output() Slice { return p.out.Seal() }

// Text flattens the output; every line break is spelled "\n".
func (p *Preprocessor) Text() string { return p.Output().Text() }

// Files returns the loaded files keyed by full path.
func (p *Preprocessor) Files() map[string]*FileSource { return p.files }

// TokenCount is the number of tokens allocated by the session.
func (p *Preprocessor) TokenCount() int { return p.arena.count }

// Preprocess runs src as the in-memory document <root_file> in a new session.
func Preprocess(src string) (*Preprocessor, error) {
	p := NewPreprocessor()
	return p, p.PreprocessFile(NewFileSource(RootFileName, src))
}

// PreprocessToString is Preprocess plus the flattened output.
func PreprocessToString(src string) (*Preprocessor, string, error) {
	p, err := Preprocess(src)
	if err != nil {
		return p, "", err
	}
	return p, p.Text(), nil
}
