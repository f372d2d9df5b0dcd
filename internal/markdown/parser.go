package markdown

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"
)

type Parser struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func NewParser() *Parser {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			&frontmatter.Extender{},
		),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithHardWraps(),
			goldmarkhtml.WithXHTML(),
		),
	)

	return &Parser{
		md:     md,
		policy: bluemonday.UGCPolicy(),
	}
}

// Render converts source to sanitized HTML. When meta is non-nil the
// document's frontmatter is decoded into it.
func (p *Parser) Render(source []byte, meta any) (string, error) {
	context := parser.NewContext()
	var buf bytes.Buffer

	err := p.md.Convert(source, &buf, parser.WithContext(context))
	if err != nil {
		return "", err
	}

	if meta != nil {
		data := frontmatter.Get(context)
		if data != nil {
			err = data.Decode(meta)
			if err != nil {
				return "", err
			}
		}
	}

	return string(p.policy.SanitizeBytes(buf.Bytes())), nil
}
