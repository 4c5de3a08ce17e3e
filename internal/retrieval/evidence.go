package retrieval

import "fmt"

// Evidence is one retrieved chunk with its provenance. Agents cite these
// by ID, so IDs stay stable within a single retrieval ("e1", "e2", ...).
type Evidence struct {
	ID        string  `json:"id"`
	Source    string  `json:"source"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
	PageStart *int    `json:"page_start"`
	PageEnd   *int    `json:"page_end"`
	Section   *string `json:"section"`
	Snippet   string  `json:"snippet"`
}

// ToMap renders the evidence for JSON-ish payloads handed to agents.
func (e Evidence) ToMap() map[string]any {
	m := map[string]any{
		"id":      e.ID,
		"source":  e.Source,
		"score":   e.Score,
		"text":    e.Text,
		"snippet": e.Snippet,
	}
	if e.PageStart != nil {
		m["page_start"] = *e.PageStart
	} else {
		m["page_start"] = nil
	}
	if e.PageEnd != nil {
		m["page_end"] = *e.PageEnd
	} else {
		m["page_end"] = nil
	}
	if e.Section != nil {
		m["section"] = *e.Section
	} else {
		m["section"] = nil
	}
	return m
}

// EvidenceFromMatch builds an Evidence from a vector store match. index is
// the match's position in the result list and drives the ID.
func EvidenceFromMatch(match Match, index int) Evidence {
	md := match.Metadata
	if md == nil {
		md = map[string]any{}
	}

	text := stringField(md, "text")
	if text == "" {
		text = stringField(md, "chunk")
	}

	source := firstNonEmpty(
		stringField(md, "filename"),
		stringField(md, "source"),
		stringField(md, "url"),
		stringField(md, "doc_id"),
	)
	if source == "" {
		source = "unknown"
	}

	ev := Evidence{
		ID:     fmt.Sprintf("e%d", index+1),
		Source: source,
		Score:  match.Score,
		Text:   text,
	}
	if page, ok := intField(md, "page"); ok {
		ev.PageStart = &page
		end := page
		ev.PageEnd = &end
	}
	if section := stringField(md, "section"); section != "" {
		ev.Section = &section
	}
	ev.Snippet = ev.Text
	return ev
}

func stringField(md map[string]any, key string) string {
	v, ok := md[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

func intField(md map[string]any, key string) (int, bool) {
	switch v := md[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	default:
		return 0, false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
