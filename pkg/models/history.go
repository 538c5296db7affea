package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// HistoryEntryType tells who produced a history entry.
type HistoryEntryType string

const (
	HistoryUser        HistoryEntryType = "user"
	HistoryLLMResponse HistoryEntryType = "llm_response"
)

// ContentKind tags the variant held by HistoryContent.
type ContentKind string

const (
	ContentNone    ContentKind = ""
	ContentText    ContentKind = "text"
	ContentFileSet ContentKind = "fileset"
)

// HistoryContent is either a text prompt, a generated file set, or empty.
// On the wire it is a JSON string, an object of path to content, or null.
type HistoryContent struct {
	Kind  ContentKind
	Text  string
	Files FileMap
}

// TextContent builds a text variant.
func TextContent(s string) HistoryContent {
	return HistoryContent{Kind: ContentText, Text: s}
}

// FileSetContent builds a file set variant.
func FileSetContent(files FileMap) HistoryContent {
	return HistoryContent{Kind: ContentFileSet, Files: files}
}

// UnmarshalJSON decodes the string | object | null union.
func (c *HistoryContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = HistoryContent{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = TextContent(s)
		return nil
	case data[0] == '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		files := make(FileMap, len(raw))
		for path, v := range raw {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				// Non-string values are kept in their JSON form.
				s = string(v)
			}
			files[path] = s
		}
		*c = FileSetContent(files)
		return nil
	default:
		return fmt.Errorf("history content: unsupported JSON value %.20s", data)
	}
}

// MarshalJSON encodes the variant back to its wire shape.
func (c HistoryContent) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case ContentText:
		return json.Marshal(c.Text)
	case ContentFileSet:
		return json.Marshal(map[string]string(c.Files))
	default:
		return []byte("null"), nil
	}
}

// HistoryEntry is one prompt or response in a project's history.
type HistoryEntry struct {
	Type      HistoryEntryType `json:"type"`
	Content   HistoryContent   `json:"content"`
	Timestamp string           `json:"timestamp"`
}

// ProjectHistory is the prompt/response log of a project.
type ProjectHistory struct {
	ProjectName string         `json:"project_name"`
	Prompts     []HistoryEntry `json:"prompts"`
}
