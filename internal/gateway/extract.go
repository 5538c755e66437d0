package gateway

import (
	"bytes"
	"encoding/json"
)

// chatBody covers the request shapes of the common chat and completion
// APIs. Only text-bearing fields are decoded.
type chatBody struct {
	System   json.RawMessage `json:"system"`
	Messages []chatMessage   `json:"messages"`
	Prompt   json.RawMessage `json:"prompt"`
	Input    json.RawMessage `json:"input"`
}

type chatMessage struct {
	Content json.RawMessage `json:"content"`
}

// contentPart is either a typed content part or a message item whose
// content nests further parts, as in Responses API input lists.
type contentPart struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Content json.RawMessage `json:"content"`
}

// ExtractTexts returns the text fragments of an LLM request body in
// document order: system prompt, messages, prompt, input. Bodies that are
// not recognizable chat JSON are inspected whole.
func ExtractTexts(body []byte) []string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}

	var chat chatBody
	if trimmed[0] == '{' && json.Unmarshal(trimmed, &chat) == nil {
		var texts []string
		texts = appendContent(texts, chat.System)
		for _, msg := range chat.Messages {
			texts = appendContent(texts, msg.Content)
		}
		texts = appendContent(texts, chat.Prompt)
		texts = appendContent(texts, chat.Input)
		if len(texts) > 0 {
			return texts
		}
	}

	return []string{string(body)}
}

// appendContent accepts a string, a list of strings, or a list of typed
// content parts and message items. Non-text parts such as images are
// skipped.
func appendContent(texts []string, raw json.RawMessage) []string {
	if len(raw) == 0 {
		return texts
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		if s != "" {
			texts = append(texts, s)
		}
		return texts
	}

	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return texts
	}
	for _, item := range items {
		var str string
		if json.Unmarshal(item, &str) == nil {
			if str != "" {
				texts = append(texts, str)
			}
			continue
		}
		var part contentPart
		if json.Unmarshal(item, &part) != nil {
			continue
		}
		if len(part.Content) > 0 {
			texts = appendContent(texts, part.Content)
			continue
		}
		switch part.Type {
		case "", "text", "input_text", "output_text":
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
	}
	return texts
}

// parseTexts decodes the texts field of an evaluate request. Anything that
// is not a list of strings is treated as no texts.
func parseTexts(inputs json.RawMessage) []string {
	if len(inputs) == 0 {
		return nil
	}
	var wrapper struct {
		Texts json.RawMessage `json:"texts"`
	}
	if json.Unmarshal(inputs, &wrapper) != nil || len(wrapper.Texts) == 0 {
		return nil
	}
	var texts []string
	if json.Unmarshal(wrapper.Texts, &texts) != nil {
		return nil
	}
	return texts
}
