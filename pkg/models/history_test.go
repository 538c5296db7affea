package models

import (
	"encoding/json"
	"testing"
)

func TestHistoryContentDecode(t *testing.T) {
	raw := `{"project_name":"demo","prompts":[
		{"type":"user","content":"make a calculator","timestamp":"t1"},
		{"type":"llm_response","content":{"main.py":"print(1)","cfg.json":{"a":1}},"timestamp":"t2"},
		{"type":"llm_response","content":null,"timestamp":"t3"}
	]}`

	var h ProjectHistory
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if h.ProjectName != "demo" || len(h.Prompts) != 3 {
		t.Fatalf("unexpected history: %+v", h)
	}

	if got := h.Prompts[0].Content; got.Kind != ContentText || got.Text != "make a calculator" {
		t.Errorf("entry 0: got %+v", got)
	}
	fs := h.Prompts[1].Content
	if fs.Kind != ContentFileSet {
		t.Fatalf("entry 1: expected fileset, got %q", fs.Kind)
	}
	if fs.Files["main.py"] != "print(1)" {
		t.Errorf("main.py = %q", fs.Files["main.py"])
	}
	if fs.Files["cfg.json"] != `{"a":1}` {
		t.Errorf("cfg.json = %q", fs.Files["cfg.json"])
	}
	if h.Prompts[2].Content.Kind != ContentNone {
		t.Errorf("entry 2: expected empty content, got %q", h.Prompts[2].Content.Kind)
	}
}

func TestHistoryContentRejectsNumbers(t *testing.T) {
	var c HistoryContent
	if err := json.Unmarshal([]byte(`42`), &c); err == nil {
		t.Fatal("expected error for numeric content")
	}
}

func TestLLMOptionsDefault(t *testing.T) {
	tests := []struct {
		name         string
		opts         LLMOptions
		wantProvider string
		wantModel    string
	}{
		{"preferred offered", LLMOptions{"gemini": {"gemini-1.5-pro", "flash"}, "openai": {"gpt-4o"}}, "gemini", "gemini-1.5-pro"},
		{"preferred model missing", LLMOptions{"gemini": {"flash"}}, "gemini", "flash"},
		{"fallback to first provider", LLMOptions{"openai": {"gpt-4o"}, "anthropic": {"claude"}}, "anthropic", "claude"},
		{"no options", nil, "gemini", "gemini-1.5-pro"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, m := tt.opts.Default("gemini", "gemini-1.5-pro")
			if p != tt.wantProvider || m != tt.wantModel {
				t.Errorf("Default() = %s/%s, want %s/%s", p, m, tt.wantProvider, tt.wantModel)
			}
		})
	}
}
