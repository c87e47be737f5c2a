package gemini

import (
	"testing"

	"google.golang.org/api/generativelanguage/v1beta"
)

func TestModelName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "models/gemini-2.0-flash"},
		{"gemini-1.5-pro", "models/gemini-1.5-pro"},
		{"models/gemini-1.5-pro", "models/gemini-1.5-pro"},
	}
	for _, tt := range tests {
		if got := modelName(tt.in); got != tt.want {
			t.Errorf("modelName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResponseText(t *testing.T) {
	tests := []struct {
		name string
		resp *generativelanguage.GenerateContentResponse
		want string
	}{
		{"nil", nil, ""},
		{"no candidates", &generativelanguage.GenerateContentResponse{}, ""},
		{
			name: "joins parts",
			resp: &generativelanguage.GenerateContentResponse{Candidates: []*generativelanguage.Candidate{{
				Content: &generativelanguage.Content{Parts: []*generativelanguage.Part{{Text: "```json\n{"}, {Text: "}\n```"}}},
			}}},
			want: "```json\n{}\n```",
		},
		{
			name: "skips empty candidate",
			resp: &generativelanguage.GenerateContentResponse{Candidates: []*generativelanguage.Candidate{
				{Content: nil},
				{Content: &generativelanguage.Content{Parts: []*generativelanguage.Part{{Text: "ok"}}}},
			}},
			want: "ok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResponseText(tt.resp); got != tt.want {
				t.Errorf("ResponseText() = %q, want %q", got, tt.want)
			}
		})
	}
}
