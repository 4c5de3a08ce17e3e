package ingest

import (
	"regexp"
	"strings"
)

var (
	sectionRefRE   = regexp.MustCompile(`(?i)\bsection\s+\d+(\.\d+)*\b`)
	scholarlyHdrRE = regexp.MustCompile(`\b(?:introduction|methods?|results?|discussion|conclusion)\b`)
	decimalRefRE   = regexp.MustCompile(`\b\d+(\.\d+)+\b`)
)

// sampleText joins block text and section labels until maxChars is
// reached; detection scores run over this sample rather than the whole
// document.
func sampleText(blocks []Block, maxChars int) string {
	var parts []string
	total := 0
	for _, b := range blocks {
		if b.Text != "" {
			parts = append(parts, b.Text)
			total += runeLen(b.Text)
		}
		if b.Section != "" {
			parts = append(parts, b.Section)
			total += runeLen(b.Section)
		}
		if total >= maxChars {
			break
		}
	}
	return headRunes(strings.Join(parts, "\n"), maxChars)
}

// DetectDocType classifies a document as scholarly, financial, legal,
// scan or generic from keyword scores over a bounded sample. Sparse pages
// short-circuit to scan: OCR output tends to produce many near-empty
// pages.
func DetectDocType(blocks []Block) string {
	if len(blocks) == 0 {
		return "generic"
	}

	pages := map[int]bool{}
	totalChars := 0
	for _, b := range blocks {
		if b.Page > 0 {
			pages[b.Page] = true
		}
		totalChars += runeLen(b.Text)
	}
	pageCount := len(pages)
	if pageCount == 0 {
		pageCount = 1
	}
	avgChars := float64(totalChars) / float64(pageCount)
	if pageCount >= 3 && avgChars < 450 {
		return "scan"
	}

	sample := strings.ToLower(sampleText(blocks, 50000))

	scholarly, financial, legal := 0, 0, 0

	if strings.Contains(sample, "abstract") {
		scholarly += 2
	}
	if strings.Contains(sample, "references") || strings.Contains(sample, "bibliography") {
		scholarly += 2
	}
	if strings.Contains(sample, "arxiv") || strings.Contains(sample, "doi") {
		scholarly += 2
	}
	if scholarlyHdrRE.MatchString(sample) {
		scholarly++
	}

	if strings.Contains(sample, "consolidated financial statements") {
		financial += 3
	}
	if strings.Contains(sample, "balance sheet") {
		financial += 2
	}
	if strings.Contains(sample, "income statement") || strings.Contains(sample, "statement of income") {
		financial += 2
	}
	if strings.Contains(sample, "cash flow") || strings.Contains(sample, "cash flows") {
		financial += 2
	}
	if strings.Contains(sample, "notes to the financial statements") {
		financial += 2
	}
	if strings.Contains(sample, "fair value") {
		financial++
	}
	if strings.Contains(sample, "assets") && strings.Contains(sample, "liabilit") {
		financial++
	}

	if strings.Contains(sample, "agreement") {
		legal += 2
	}
	if strings.Contains(sample, "governing law") {
		legal += 2
	}
	if strings.Contains(sample, "indemnif") {
		legal += 2
	}
	if strings.Contains(sample, "whereas") {
		legal++
	}
	if sectionRefRE.MatchString(sample) {
		legal += 2
	}
	if decimalRefRE.MatchString(sample) {
		legal++
	}

	best, bestScore := "scholarly", scholarly
	if financial > bestScore {
		best, bestScore = "financial", financial
	}
	if legal > bestScore {
		best, bestScore = "legal", legal
	}
	if bestScore < 2 {
		return "generic"
	}
	return best
}
