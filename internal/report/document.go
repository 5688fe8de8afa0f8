package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/KaramelBytes/finai-cli/internal/plot"
)

// Heading classes.
const (
	InsightsClass = "insights"
	OverviewClass = "overview"
)

const (
	insightWord  = "insight"
	overviewWord = "overview"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Table),
	goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
)

// MarkdownToHTML converts Markdown (tables and raw HTML allowed) to HTML.
func MarkdownToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}

// block is one piece of the report body: Markdown text or a chart.
type block struct {
	markdown string
	plot     *plot.Plot
}

// document is the ordered report body before serialization.
type document struct {
	blocks []block
}

// splitSections cuts Markdown at level-2 headings outside fenced code.
// Text before the first heading is its own section.
func splitSections(md string) []string {
	var sections []string
	var cur strings.Builder
	inFence := false
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			sections = append(sections, s)
		}
		cur.Reset()
	}
	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}
		if !inFence && strings.HasPrefix(line, "## ") {
			flush()
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
	}
	flush()
	return sections
}

func sectionHeading(section string) string {
	if !strings.HasPrefix(section, "## ") {
		return ""
	}
	line, _, _ := strings.Cut(section, "\n")
	return strings.TrimSpace(strings.TrimPrefix(line, "## "))
}

func matches(text, word string) bool {
	return strings.Contains(strings.ToLower(text), word)
}

// buildDocument lays out the summary sections, up to two charts and the
// question sections. first goes after the summary; second goes before the
// first insights section, or right after first when there is none.
func buildDocument(summary string, first, second *plot.Plot, qa []Section) *document {
	sections := splitSections(summary)
	doc := &document{}
	insightAt := -1
	for i, s := range sections {
		if insightAt < 0 && matches(sectionHeading(s), insightWord) {
			insightAt = i
		}
	}
	for i, s := range sections {
		if i == insightAt && second != nil {
			doc.blocks = append(doc.blocks, block{plot: second})
		}
		doc.blocks = append(doc.blocks, block{markdown: s})
	}
	if first != nil {
		doc.blocks = append(doc.blocks, block{plot: first})
	}
	if insightAt < 0 && second != nil {
		doc.blocks = append(doc.blocks, block{plot: second})
	}
	for _, sec := range qa {
		if len(sec.Answers) == 0 {
			continue
		}
		doc.blocks = append(doc.blocks, block{markdown: sec.Markdown()})
	}
	return doc
}

// Render converts every block to nodes, classes the h2 headings and
// serializes the tree once.
func (d *document) Render() (string, error) {
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, b := range d.blocks {
		if b.plot != nil {
			root.AppendChild(plotNode(b.plot))
			continue
		}
		frag, err := MarkdownToHTML(b.markdown)
		if err != nil {
			return "", err
		}
		nodes, err := html.ParseFragment(strings.NewReader(frag), &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div})
		if err != nil {
			return "", fmt.Errorf("parse html: %w", err)
		}
		for _, n := range nodes {
			root.AppendChild(n)
		}
	}
	classHeadings(root)

	var buf bytes.Buffer
	for n := root.FirstChild; n != nil; n = n.NextSibling {
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}
	return buf.String(), nil
}

// classHeadings marks h2 elements mentioning insights, then overview.
func classHeadings(n *html.Node) {
	if n.Type == html.ElementNode && n.DataAtom == atom.H2 {
		text := textContent(n)
		if matches(text, insightWord) {
			setClass(n, InsightsClass)
		}
		if matches(text, overviewWord) {
			setClass(n, OverviewClass)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		classHeadings(c)
	}
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

func setClass(n *html.Node, class string) {
	for i, a := range n.Attr {
		if a.Key == "class" {
			n.Attr[i].Val = class
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: "class", Val: class})
}

func element(a atom.Atom, class string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a}
	if class != "" {
		n.Attr = []html.Attribute{{Key: "class", Val: class}}
	}
	return n
}

// plotNode builds div.plot-container > div.plot > img.plot-img + p.plot-desc.
func plotNode(p *plot.Plot) *html.Node {
	container := element(atom.Div, "plot-container")
	inner := element(atom.Div, "plot")
	img := element(atom.Img, "plot-img")
	img.Attr = append(img.Attr, html.Attribute{Key: "src", Val: p.DataURI()})
	if p.Title != "" {
		img.Attr = append(img.Attr, html.Attribute{Key: "alt", Val: p.Title})
	}
	desc := element(atom.P, "plot-desc")
	for i, line := range strings.Split(p.Description, "\n") {
		if i > 0 {
			desc.AppendChild(element(atom.Br, ""))
		}
		desc.AppendChild(&html.Node{Type: html.TextNode, Data: line})
	}
	inner.AppendChild(img)
	inner.AppendChild(desc)
	container.AppendChild(inner)
	return container
}
