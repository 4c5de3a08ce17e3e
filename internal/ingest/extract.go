package ingest

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// Block is one extracted unit of source text headed for the chunker. Page
// is 1-based; paginated sources carry real numbers, everything else uses 1.
type Block struct {
	Page    int
	Section string
	Text    string
	Type    string
}

const (
	blockPara      = "para"
	blockClause    = "clause"
	blockTable     = "table"
	blockFootnote  = "footnote"
	blockReference = "reference"
	blockCode      = "code"
)

var (
	headingRE    = regexp.MustCompile(`^(?:\d+(\.\d+)*\s+)?[A-Z][^\n]{2,120}$`)
	clauseRE     = regexp.MustCompile(`(?i)^(?:section\s+)?\d+(\.\d+)+`)
	tableSpaceRE = regexp.MustCompile(`\s{2,}`)
	digitRE      = regexp.MustCompile(`\d`)
	footnoteRE   = regexp.MustCompile(`^\d+\s`)

	markdownHeadingRE = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
)

var codeExtensions = map[string]bool{
	".go":  true,
	".js":  true,
	".jsx": true,
	".mjs": true,
	".py":  true,
}

func extensionOf(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// extractBlocks routes a document to the extractor for its file type and
// returns the block sequence plus the extraction method label.
func extractBlocks(ctx context.Context, filename string, data []byte, maxPages int) ([]Block, string, error) {
	ext := extensionOf(filename)
	switch {
	case ext == ".pdf":
		return extractPDF(data, maxPages)
	case ext == ".md" || ext == ".markdown":
		blocks := extractText(data, true)
		return blocks, "markdown", nil
	case ext == ".txt":
		blocks := extractText(data, false)
		return blocks, "text", nil
	case codeExtensions[ext]:
		return extractCode(ctx, filename, data)
	default:
		return nil, "", fmt.Errorf("unsupported file type %q", ext)
	}
}

// pdfPage carries one page's normalized text and its heading-shaped lines.
type pdfPage struct {
	page     int
	text     string
	headings []string
}

// extractPDFPages pulls per-page text with lightweight structural hints.
// The parser panics on some malformed files; those surface as errors.
func extractPDFPages(data []byte, maxPages int) (pages []pdfPage, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf parse: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	limit := reader.NumPage()
	if maxPages > 0 && maxPages < limit {
		limit = maxPages
	}

	for i := 1; i <= limit; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text := normalizeWS(pageText(p))

		var headings []string
		for _, line := range strings.Split(text, "\n") {
			ln := strings.TrimSpace(line)
			if n := runeLen(ln); n >= 4 && n <= 120 && headingRE.MatchString(ln) {
				headings = append(headings, ln)
			}
		}

		pages = append(pages, pdfPage{page: i, text: text, headings: headings})
	}
	return pages, nil
}

// pageText reconstructs page text row by row so heading detection sees
// real lines; plain-text extraction is the fallback.
func pageText(p pdf.Page) string {
	rows, err := p.GetTextByRow()
	if err == nil && len(rows) > 0 {
		var sb strings.Builder
		for _, row := range rows {
			for _, word := range row.Content {
				sb.WriteString(word.S)
			}
			sb.WriteString("\n")
		}
		return sb.String()
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

// extractPDF produces page/section-tagged blocks. The first heading-shaped
// line on a page becomes the section label until a later page replaces it.
func extractPDF(data []byte, maxPages int) ([]Block, string, error) {
	pages, err := extractPDFPages(data, maxPages)
	if err != nil {
		return nil, "", err
	}

	var blocks []Block
	section := ""
	for _, p := range pages {
		if len(p.headings) > 0 {
			section = p.headings[0]
		}
		for _, para := range splitParagraphs(p.text) {
			blocks = append(blocks, Block{
				Page:    p.page,
				Section: section,
				Text:    para,
				Type:    classifyBlock(para),
			})
		}
	}
	return blocks, "pdf", nil
}

// extractText handles plain text and markdown. Markdown headings update
// the section label; for plain text a standalone heading-shaped line does.
func extractText(data []byte, markdown bool) []Block {
	text := normalizeWS(string(data))
	section := ""

	var blocks []Block
	for _, para := range splitParagraphs(text) {
		if markdown {
			if m := markdownHeadingRE.FindStringSubmatch(firstLine(para)); m != nil {
				section = strings.TrimSpace(m[2])
			}
		} else if n := runeLen(para); n >= 4 && n <= 120 &&
			!strings.Contains(para, "\n") && headingRE.MatchString(para) {
			section = para
		}
		blocks = append(blocks, Block{
			Page:    1,
			Section: section,
			Text:    para,
			Type:    classifyBlock(para),
		})
	}
	return blocks
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func splitParagraphs(text string) []string {
	var out []string
	for _, part := range strings.Split(text, "\n\n") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// classifyBlock tags a paragraph with a structural hint. Clauses, tables
// and footnotes are flushed as standalone chunks downstream.
func classifyBlock(text string) string {
	if text == "" {
		return blockPara
	}
	if clauseRE.MatchString(text) {
		return blockClause
	}
	if looksLikeTable(text) {
		return blockTable
	}
	if runeLen(text) < 160 && footnoteRE.MatchString(text) {
		return blockFootnote
	}
	return blockPara
}

func looksLikeTable(text string) bool {
	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		if s := strings.TrimSpace(ln); s != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) < 3 {
		return false
	}
	spaced, digits := 0, 0
	for _, ln := range lines {
		if tableSpaceRE.MatchString(ln) {
			spaced++
		}
		if digitRE.MatchString(ln) {
			digits++
		}
	}
	n := float64(len(lines))
	return float64(spaced)/n >= 0.6 && float64(digits)/n >= 0.6
}

func languageForExt(ext string) *sitter.Language {
	switch ext {
	case ".go":
		return golang.GetLanguage()
	case ".js", ".jsx", ".mjs":
		return javascript.GetLanguage()
	case ".py":
		return python.GetLanguage()
	default:
		return nil
	}
}

func definitionNodeTypes(ext string) map[string]bool {
	switch ext {
	case ".go":
		return map[string]bool{
			"function_declaration": true,
			"method_declaration":   true,
			"type_declaration":     true,
		}
	case ".js", ".jsx", ".mjs":
		return map[string]bool{
			"function_declaration": true,
			"class_declaration":    true,
		}
	case ".py":
		return map[string]bool{
			"function_definition":  true,
			"class_definition":     true,
			"decorated_definition": true,
		}
	default:
		return nil
	}
}

// extractCode splits a source file into definition-aligned blocks. Each
// top-level function, class or type becomes its own code block labeled
// with the definition name; everything between definitions (imports,
// package clauses, comments) stays as plain paragraphs.
func extractCode(ctx context.Context, filename string, source []byte) ([]Block, string, error) {
	ext := extensionOf(filename)
	lang := languageForExt(ext)
	if lang == nil {
		return extractText(source, false), "text", nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", filename, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return extractText(source, false), "text", nil
	}

	defs := definitionNodeTypes(ext)
	var blocks []Block
	section := ""
	spanStart := uint32(0)

	flushInterstitial := func(end uint32) {
		if end <= spanStart {
			return
		}
		text := normalizeWS(string(source[spanStart:end]))
		if text == "" {
			return
		}
		blocks = append(blocks, Block{Page: 1, Section: section, Text: text, Type: blockPara})
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		if !defs[node.Type()] {
			continue
		}
		flushInterstitial(node.StartByte())
		if name := definitionName(node, source); name != "" {
			section = name
		}
		blocks = append(blocks, Block{
			Page:    1,
			Section: section,
			Text:    normalizeWS(string(source[node.StartByte():node.EndByte()])),
			Type:    blockCode,
		})
		spanStart = node.EndByte()
	}
	flushInterstitial(uint32(len(source)))

	return blocks, "treesitter", nil
}

func definitionName(node *sitter.Node, source []byte) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return n.Content(source)
	}
	// Go type declarations carry the name on the inner type_spec; Python
	// decorated definitions wrap the real definition one level down.
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "type_spec", "function_definition", "class_definition":
			if n := child.ChildByFieldName("name"); n != nil {
				return n.Content(source)
			}
		}
	}
	return ""
}
