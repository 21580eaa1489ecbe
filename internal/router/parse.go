package router

import "strings"

// parseCommand splits "/name[@bot] args..." into the lower-cased name and the
// argument text. Commands addressed to a different bot are rejected.
func parseCommand(s, botName string) (name, rest string, ok bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "/") {
		return "", "", false
	}
	word := s[1:]
	if i := strings.IndexFunc(word, isSpace); i >= 0 {
		word, rest = word[:i], strings.TrimSpace(word[i:])
	}
	if i := strings.IndexByte(word, '@'); i >= 0 {
		target := strings.ToLower(word[i+1:])
		word = word[:i]
		if botName != "" && target != botName {
			return "", "", false
		}
	}
	if word == "" {
		return "", "", false
	}
	return strings.ToLower(word), rest, true
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }
