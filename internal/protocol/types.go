// Package protocol defines the wire types shared by the HTTP API, the
// WebSocket stream and the clients (CLI, TUI, bots).
package protocol

import "encoding/json"

// Stream message types exchanged over /ws/generate.
const (
	TypeGenerate = "generate" // client -> server request
	TypePlan     = "plan"     // server -> client: validated plan
	TypeStep     = "step"     // server -> client: one executed step
	TypeOutput   = "output"   // server -> client: final result envelope
	TypeError    = "error"    // server -> client: request failed
	TypeDone     = "done"     // server -> client: run finished
)

// GenerateRequest is the body of POST /generate and the payload of a
// "generate" stream message.
type GenerateRequest struct {
	Goal               string `json:"goal"`
	NamespaceContext   string `json:"namespace_context,omitempty"`
	NamespaceKnowledge string `json:"namespace_knowledge,omitempty"`
	DocID              string `json:"doc_id,omitempty"`
}

// GenerateResponse is the body of a /generate response and of an "output"
// stream message. Trace is kept raw so clients can render what they need
// without tracking the full trace schema.
type GenerateResponse struct {
	TraceID    string          `json:"trace_id"`
	Output     string          `json:"output"`
	Blocked    bool            `json:"blocked"`
	Moderation map[string]any  `json:"moderation"`
	Trace      json.RawMessage `json:"trace"`
}

// PlanEvent is the payload of a "plan" stream message.
type PlanEvent struct {
	Steps []PlanStepEvent `json:"steps"`
}

// PlanStepEvent is one planned step as shown to clients.
type PlanStepEvent struct {
	Step  int    `json:"step"`
	Agent string `json:"agent"`
}

// StepEvent is the payload of a "step" stream message.
type StepEvent struct {
	Step      int     `json:"step"`
	Agent     string  `json:"agent"`
	DurationS float64 `json:"duration_s"`
}

// ChatRequest is the body of POST /chat: a question against one uploaded
// document, with optional retrieval filters and thread continuation. The
// question may arrive under either "question" or "message".
type ChatRequest struct {
	DocID              string   `json:"doc_id"`
	Question           string   `json:"question"`
	TopK               int      `json:"top_k,omitempty"`
	NamespaceKnowledge string   `json:"namespace_knowledge,omitempty"`
	ContextTypes       []string `json:"context_types,omitempty"`
	Section            string   `json:"section,omitempty"`
	PageStart          int      `json:"page_start,omitempty"`
	PageEnd            int      `json:"page_end,omitempty"`
	ThreadID           string   `json:"thread_id,omitempty"`
	StyleNotes         string   `json:"style_notes,omitempty"`
}

// UnmarshalJSON accepts "message" as an alias for "question".
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type plain ChatRequest
	aux := struct {
		*plain
		Message string `json:"message"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.Question == "" {
		r.Question = aux.Message
	}
	return nil
}

// ChatResponse is the body of a /chat response. Citations and Evidence carry
// the same entries; both names are kept for client compatibility.
type ChatResponse struct {
	Answer    string           `json:"answer"`
	DocID     string           `json:"doc_id"`
	ThreadID  string           `json:"thread_id,omitempty"`
	Citations []map[string]any `json:"citations"`
	Evidence  []map[string]any `json:"evidence"`
}

// UploadResponse is the body of a /upload response.
type UploadResponse struct {
	DocID            string `json:"doc_id"`
	Filename         string `json:"filename"`
	FileSizeBytes    int    `json:"file_size_bytes"`
	Pages            int    `json:"pages"`
	Chunks           int    `json:"chunks"`
	Namespace        string `json:"namespace"`
	DocType          string `json:"doc_type"`
	ChunkChars       int    `json:"chunk_chars"`
	OverlapChars     int    `json:"overlap_chars"`
	ExtractionMethod string `json:"extraction_method"`
}

// ContextUploadRequest is the body of POST /context.
type ContextUploadRequest struct {
	Text        string `json:"text"`
	Source      string `json:"source,omitempty"`
	ContextType string `json:"context_type,omitempty"`
}

// ContextUploadResponse is the body of a /context response.
type ContextUploadResponse struct {
	ContextID string `json:"context_id"`
	Namespace string `json:"namespace"`
}

// BlueprintUploadRequest is the body of POST /context-blueprint. Blueprint
// tolerates a JSON object serialized as a string.
type BlueprintUploadRequest struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Blueprint   map[string]any `json:"blueprint"`
}

// UnmarshalJSON coerces a stringified blueprint object into a mapping.
func (r *BlueprintUploadRequest) UnmarshalJSON(data []byte) error {
	type plain BlueprintUploadRequest
	aux := struct {
		*plain
		Blueprint json.RawMessage `json:"blueprint"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Blueprint) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(aux.Blueprint, &obj); err == nil {
		r.Blueprint = obj
		return nil
	}
	var encoded string
	if err := json.Unmarshal(aux.Blueprint, &encoded); err == nil {
		if err := json.Unmarshal([]byte(encoded), &obj); err == nil {
			r.Blueprint = obj
		}
	}
	return nil
}

// BlueprintUploadResponse is the body of a /context-blueprint response.
type BlueprintUploadResponse struct {
	BlueprintID string `json:"blueprint_id"`
	Namespace   string `json:"namespace"`
}

// DeleteDocRequest is the body of POST /delete-doc.
type DeleteDocRequest struct {
	DocID string `json:"doc_id"`
}

// DeleteContextRequest is the body of POST /delete-context.
type DeleteContextRequest struct {
	ContextID string `json:"context_id"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthStatus is the body of /auth/login, /auth/logout and /auth/me
// responses.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
}

// ErrorResponse is the body of intended HTTP errors (4xx and handler 5xx).
// Unexpected panics produce {"error": ...} instead, so clients can tell the
// two apart.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
