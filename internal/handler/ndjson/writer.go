// Package ndjson writes newline-delimited JSON event streams for chat
// responses. Events are tagged by type: one meta, any number of deltas,
// at most one error, then exactly one done.
package ndjson

import (
	"encoding/json"
	"net/http"
)

// ContentType is the media type of the event stream.
const ContentType = "application/x-ndjson; charset=utf-8"

// Event types.
const (
	TypeMeta  = "meta"
	TypeDelta = "delta"
	TypeError = "error"
	TypeDone  = "done"
)

type metaEvent struct {
	Type               string `json:"type"`
	ConversationID     string `json:"conversationId"`
	AssistantMessageID string `json:"assistantMessageId"`
}

type deltaEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ErrorDetail is the payload of an error event.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEvent struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

type doneEvent struct {
	Type string `json:"type"`
}

// Writer emits NDJSON events over an HTTP response, flushing after every
// event so deltas reach the client as they are produced. Write failures
// (client gone) are recorded and subsequent writes become no-ops.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	failed  bool
}

// NewWriter wraps a response writer. Headers are not sent until Start.
func NewWriter(w http.ResponseWriter) *Writer {
	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// Start sends the streaming headers. Must be called before the first event;
// after this, errors can only be reported in-stream.
func (nw *Writer) Start() {
	if nw.started {
		return
	}
	nw.started = true
	nw.w.Header().Set("Content-Type", ContentType)
	nw.w.Header().Set("Cache-Control", "no-cache")
	nw.w.WriteHeader(http.StatusOK)
	if nw.flusher != nil {
		nw.flusher.Flush()
	}
}

// Started reports whether streaming headers have been sent.
func (nw *Writer) Started() bool { return nw.started }

func (nw *Writer) writeEvent(v interface{}) {
	if !nw.started || nw.failed {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		nw.failed = true
		return
	}
	if _, err := nw.w.Write(append(data, '\n')); err != nil {
		nw.failed = true
		return
	}
	if nw.flusher != nil {
		nw.flusher.Flush()
	}
}

// Meta emits the stream's first event carrying the conversation and
// assistant message ids.
func (nw *Writer) Meta(conversationID, assistantMessageID string) {
	nw.writeEvent(metaEvent{Type: TypeMeta, ConversationID: conversationID, AssistantMessageID: assistantMessageID})
}

// Delta emits one increment of generated text.
func (nw *Writer) Delta(text string) {
	nw.writeEvent(deltaEvent{Type: TypeDelta, Text: text})
}

// Error emits an in-stream error event. At most one should be sent, and
// only before Done.
func (nw *Writer) Error(code, message string) {
	nw.writeEvent(errorEvent{Type: TypeError, Error: ErrorDetail{Code: code, Message: message}})
}

// Done emits the terminal event.
func (nw *Writer) Done() {
	nw.writeEvent(doneEvent{Type: TypeDone})
}
