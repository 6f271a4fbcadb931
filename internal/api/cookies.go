package api

import "strings"

// MergeCookies folds name=value pairs into a Cookie header value. Later
// values replace earlier ones with the same name; first-seen order is kept.
func MergeCookies(header string, pairs ...string) string {
	var names []string
	values := make(map[string]string)

	add := func(pair string) {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			return
		}
		name, value, _ := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, seen := values[name]; !seen {
			names = append(names, name)
		}
		values[name] = value
	}

	for _, part := range strings.Split(header, ";") {
		add(part)
	}
	for _, pair := range pairs {
		add(pair)
	}

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+values[name])
	}
	return strings.Join(parts, "; ")
}
