package models

import "encoding/json"

// Content part types for multimodal user turns.
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// ImageURL carries an image as a data URL (base64-inlined).
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart is one element of a multimodal message content array, in the
// chat-completions wire shape.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

// ImagePart builds an image content part from a data URL.
func ImagePart(dataURL string) ContentPart {
	return ContentPart{Type: PartTypeImageURL, ImageURL: &ImageURL{URL: dataURL}}
}

// MessageContent is either plain text or a list of multimodal parts. It
// marshals to the chat-completions shape: a JSON string when Parts is nil,
// a JSON array otherwise.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.Parts = nil
		return nil
	}
	return json.Unmarshal(data, &c.Parts)
}

// PlainText returns the textual portion of the content: the text itself, or
// the concatenated text parts for multimodal content.
func (c MessageContent) PlainText() string {
	if c.Parts == nil {
		return c.Text
	}
	var out string
	for _, p := range c.Parts {
		if p.Type == PartTypeText {
			if out != "" {
				out += "\n"
			}
			out += p.Text
		}
	}
	return out
}

// ChatMessage is one entry of the ordered message list sent upstream.
type ChatMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// TextMessage builds a plain-text chat message.
func TextMessage(role, text string) ChatMessage {
	return ChatMessage{Role: role, Content: MessageContent{Text: text}}
}

// Usage holds token accounting for one completion. Estimated marks values
// produced by the local heuristic rather than the provider.
type Usage struct {
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	TotalTokens      int     `json:"totalTokens"`
	Cost             float64 `json:"cost"`
	Estimated        bool    `json:"estimated"`
}

// StreamEvent is one event from a provider stream. Exactly one field is
// set: TextDelta for an increment of generated text, Usage for final
// authoritative token accounting, or Err for a mid-stream failure.
type StreamEvent struct {
	TextDelta string
	Usage     *Usage
	Err       error
}
