package ingest

import (
	"fmt"
	"log"
	"strings"

	"github.com/igoryan-dao/quill/internal/textutil"
)

// Profile is a chunker parameter set tuned per document type.
type Profile struct {
	ChunkChars   int
	OverlapChars int
}

var chunkProfiles = map[string]Profile{
	"scholarly": {ChunkChars: 3200, OverlapChars: 320},
	"financial": {ChunkChars: 2400, OverlapChars: 240},
	"legal":     {ChunkChars: 1600, OverlapChars: 120},
	"scan":      {ChunkChars: 1400, OverlapChars: 200},
}

// ProfileFor returns the chunker parameters for a detected document type,
// falling back to the configured defaults for unknown types.
func ProfileFor(docType string, defaults Profile) Profile {
	if p, ok := chunkProfiles[docType]; ok {
		return p
	}
	return defaults
}

// standaloneBlockTypes never merge with neighboring paragraphs: they
// flush whatever is buffered and, when they fit the chunk budget, become
// chunks of their own.
var standaloneBlockTypes = map[string]bool{
	blockTable:     true,
	blockFootnote:  true,
	blockReference: true,
	blockClause:    true,
	blockCode:      true,
}

// chunker accumulates contiguous block text while tracking the page and
// section window the buffer spans. Page 0 means the window is unset.
type chunker struct {
	docID        string
	filename     string
	chunkChars   int
	overlapChars int

	buf        []string
	bufLen     int
	pageStart  int
	pageEnd    int
	section    string
	charCursor int

	chunks []Chunk
}

// flush emits the buffered text as a chunk. Non-final flushes seed the
// next buffer with the overlap tail of the emitted text. Chunks flagged
// as possible prompt injection are dropped rather than cleaned; the
// section label survives so later chunks keep their context.
func (c *chunker) flush(final bool) {
	if len(c.buf) == 0 {
		return
	}
	text := normalizeWS(strings.Join(c.buf, "\n\n"))
	if text == "" {
		return
	}

	sanitized, flags := textutil.SanitizeUntrusted(text)
	if containsFlag(flags, "possible_prompt_injection") {
		log.Printf("[Ingest] Dropping chunk flagged as possible prompt injection doc_id=%s pages=%d-%d",
			c.docID, c.pageStart, c.pageEnd)
		c.buf = nil
		c.bufLen = 0
		c.pageStart = 0
		c.pageEnd = 0
		return
	}
	text = sanitized

	hash := sha1Text(fmt.Sprintf("%s|%d|%d|%s|%s",
		c.docID, c.pageStart, c.pageEnd, c.section, headRunes(text, 2000)))

	pageStart := c.pageStart
	if pageStart == 0 {
		pageStart = 1
	}
	pageEnd := c.pageEnd
	if pageEnd == 0 {
		pageEnd = pageStart
	}

	start := c.charCursor - runeLen(text)
	if start < 0 {
		start = 0
	}

	c.chunks = append(c.chunks, Chunk{
		DocID:     c.docID,
		Filename:  c.filename,
		ChunkID:   c.docID + "-" + hash[:12],
		Text:      text,
		PageStart: pageStart,
		PageEnd:   pageEnd,
		Section:   c.section,
		CharStart: start,
		CharEnd:   start + runeLen(text),
	})

	if !final && c.overlapChars > 0 {
		tail := tailRunes(text, c.overlapChars)
		c.buf = []string{tail}
		c.bufLen = runeLen(tail)
	} else {
		c.buf = nil
		c.bufLen = 0
	}
	c.pageStart = 0
	c.pageEnd = 0
}

// chunkText merges contiguous blocks into chunks of at most chunkChars
// characters while preserving page and section metadata. Character
// offsets are cursor-derived approximations, good enough for ordering
// and display.
func chunkText(docID, filename string, blocks []Block, chunkChars, overlapChars int) []Chunk {
	c := &chunker{
		docID:        docID,
		filename:     filename,
		chunkChars:   chunkChars,
		overlapChars: overlapChars,
	}

	for _, b := range blocks {
		page := b.Page
		sec := b.Section
		if sec == "" {
			sec = c.section
		}
		text := normalizeWS(b.Text)
		if text == "" {
			continue
		}
		blockType := strings.ToLower(b.Type)
		if blockType == "" {
			blockType = blockPara
		}

		if c.section != "" && sec != "" && sec != c.section && len(c.buf) > 0 {
			c.flush(false)
		}
		if standaloneBlockTypes[blockType] && len(c.buf) > 0 {
			c.flush(false)
		}

		if c.pageStart == 0 {
			c.pageStart = page
		}
		c.pageEnd = page
		c.section = sec

		if standaloneBlockTypes[blockType] && runeLen(text) <= chunkChars {
			c.buf = []string{text}
			c.bufLen = runeLen(text)
			c.charCursor += runeLen(text)
			c.flush(true)
			continue
		}

		addLen := runeLen(text)
		if len(c.buf) > 0 {
			addLen += len("\n\n")
		}

		if c.bufLen+addLen <= chunkChars {
			c.buf = append(c.buf, text)
			c.bufLen += addLen
			c.charCursor += addLen
		} else {
			c.flush(false)
			if c.pageStart == 0 {
				c.pageStart = page
			}
			c.pageEnd = page
			c.section = sec

			if runeLen(text) > chunkChars {
				runes := []rune(text)
				stride := chunkChars - overlapChars
				if stride < 1 {
					stride = 1
				}
				for startIdx := 0; startIdx < len(runes); startIdx += stride {
					end := startIdx + chunkChars
					if end > len(runes) {
						end = len(runes)
					}
					piece := string(runes[startIdx:end])
					c.pageStart = page
					c.pageEnd = page
					c.section = sec
					c.buf = []string{piece}
					c.bufLen = runeLen(piece)
					c.charCursor += runeLen(piece)
					c.flush(false)
				}
			} else {
				c.buf = []string{text}
				c.bufLen = runeLen(text)
				c.charCursor += runeLen(text)
			}
		}
	}

	c.flush(true)
	return c.chunks
}

func containsFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
