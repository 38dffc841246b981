package vars

import (
	"fmt"
	"regexp"
	"strings"
)

var templatePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// renderString substitutes {{ token }} placeholders, resolving dotted
// paths in the given namespace. Substituted values are shell-quoted
// when quoting is needed, since rendered strings usually end up inside
// sh -c commands.
func renderString(template string, namespace map[string]interface{}) string {
	return substitute(template, namespace, shellQuote)
}

// renderBareString substitutes without shell quoting, for values that
// are compared as text rather than executed.
func renderBareString(template string, namespace map[string]interface{}) string {
	return substitute(template, namespace, func(s string) string { return s })
}

func substitute(template string, namespace map[string]interface{}, quote func(string) string) string {
	return templatePattern.ReplaceAllStringFunc(template, func(match string) string {
		token := strings.TrimSpace(templatePattern.FindStringSubmatch(match)[1])
		value, ok := lookupPath(namespace, token)
		if !ok || value == nil {
			return match
		}
		return quote(stringify(value))
	})
}

// lookupPath walks a dotted (or bracketed) path through nested maps.
// Each segment is tried as written, then lowercased, then uppercased,
// matching how profile authors mix KEY and key spellings.
func lookupPath(namespace map[string]interface{}, token string) (interface{}, bool) {
	cleaned := strings.NewReplacer("[", ".", "]", "").Replace(token)
	var current interface{} = namespace
	for _, part := range strings.Split(cleaned, ".") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if v, ok := m[part]; ok {
			current = v
			continue
		}
		if v, ok := m[strings.ToLower(part)]; ok {
			current = v
			continue
		}
		if v, ok := m[strings.ToUpper(part)]; ok {
			current = v
			continue
		}
		return nil, false
	}
	return current, true
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = stringify(item)
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}

// safeChars matches strings that need no shell quoting.
var safeChars = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// shellQuote mirrors POSIX single-quote escaping: wrap in single
// quotes, embedded quotes become '"'"'.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if safeChars.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
