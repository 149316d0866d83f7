package template

import "strings"

// Render substitutes {{key}} placeholders in a template body. Unknown
// placeholders are left as-is so a typo is visible in the sent message
// instead of silently disappearing.
func Render(body string, vars map[string]string) string {
	if len(vars) == 0 {
		return body
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(body)
}
