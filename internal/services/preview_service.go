package services

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"

	"github.com/threadview/threadview/pkg/domain"
)

// PreviewService renders an artifact body to embeddable HTML. The
// artifact type decides the pipeline: markdown through goldmark, code
// through chroma, html verbatim, everything else escaped.
type PreviewService interface {
	Render(a domain.Artifact) (string, error)
}

type previewService struct {
	md        goldmark.Markdown
	codeStyle string
}

func NewPreviewService(codeStyle string) PreviewService {
	if strings.TrimSpace(codeStyle) == "" {
		codeStyle = "github"
	}
	return &previewService{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(ghtml.WithHardWraps()),
		),
		codeStyle: codeStyle,
	}
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

func (p *previewService) Render(a domain.Artifact) (string, error) {
	switch a.Type {
	case domain.ArtifactMarkdown:
		var sb strings.Builder
		if err := p.md.Convert([]byte(a.Content), &sb); err != nil {
			return "", fmt.Errorf("render markdown artifact %s: %w", a.ID, err)
		}
		return sb.String(), nil

	case domain.ArtifactCode:
		lang := strings.TrimSpace(a.Language)
		if lang == "" {
			lang = "plaintext"
		}
		var sb strings.Builder
		if err := quick.Highlight(&sb, a.Content, lang, "html", p.codeStyle); err != nil {
			return "", fmt.Errorf("highlight artifact %s (%s): %w", a.ID, lang, err)
		}
		return sb.String(), nil

	case domain.ArtifactHTML:
		return a.Content, nil

	case domain.ArtifactSearch:
		return renderSearchResults(a)

	default:
		return "<pre>" + html.EscapeString(a.Content) + "</pre>", nil
	}
}

func renderSearchResults(a domain.Artifact) (string, error) {
	var results []searchResult
	if strings.TrimSpace(a.Content) != "" {
		if err := json.Unmarshal([]byte(a.Content), &results); err != nil {
			return "", fmt.Errorf("decode search artifact %s: %w", a.ID, err)
		}
	}

	var sb strings.Builder
	sb.WriteString("<ul class=\"search-results\">\n")
	for _, r := range results {
		sb.WriteString("<li><a href=\"")
		sb.WriteString(html.EscapeString(r.URL))
		sb.WriteString("\">")
		sb.WriteString(html.EscapeString(r.Title))
		sb.WriteString("</a>")
		if r.Snippet != "" {
			sb.WriteString("<p>")
			sb.WriteString(html.EscapeString(r.Snippet))
			sb.WriteString("</p>")
		}
		sb.WriteString("</li>\n")
	}
	sb.WriteString("</ul>")
	return sb.String(), nil
}
