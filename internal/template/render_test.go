package template

import "testing"

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		body string
		vars map[string]string
		want string
	}{
		{"simple", "Hello {{name}}!", map[string]string{"name": "Alice"}, "Hello Alice!"},
		{"multiple", "{{greeting}} {{name}}", map[string]string{"greeting": "Hi", "name": "Bob"}, "Hi Bob"},
		{"repeated", "{{name}} and {{name}}", map[string]string{"name": "x"}, "x and x"},
		{"unknown left as-is", "Hello {{nmae}}", map[string]string{"name": "Alice"}, "Hello {{nmae}}"},
		{"no vars", "Hello {{name}}", nil, "Hello {{name}}"},
		{"no placeholders", "plain text", map[string]string{"name": "x"}, "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.body, tt.vars); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}
