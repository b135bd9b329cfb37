package synth

import (
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgnsrekt/speakstream/internal/audio"
)

// PlainText strips markdown markup from each sentence before handing it to
// the wrapped synthesizer, so "**bold**" is not read out as asterisks.
// Code blocks are dropped entirely.
type PlainText struct {
	next Synthesizer
	md   goldmark.Markdown
}

// NewPlainText wraps next.
func NewPlainText(next Synthesizer) *PlainText {
	return &PlainText{next: next, md: goldmark.New()}
}

// Name implements Synthesizer.
func (p *PlainText) Name() string { return p.next.Name() }

// Synthesize implements Synthesizer.
func (p *PlainText) Synthesize(ctx context.Context, sentence string, voice Voice) (audio.Segment, error) {
	plain := p.Strip(sentence)
	if plain == "" {
		return audio.Segment{}, ErrEmptyText
	}
	return p.next.Synthesize(ctx, plain, voice)
}

// Strip returns the readable text of a markdown fragment.
func (p *PlainText) Strip(source string) string {
	src := []byte(source)
	doc := p.md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				b.Write(node.Label(src))
			}
		default:
			if !entering && n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(b.String()), " ")
}
