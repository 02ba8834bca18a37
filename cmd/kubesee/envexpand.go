package main

import (
	"os"
	"strings"
)

// expandEnv applies the config loader's environment-expansion rule to raw
// YAML text before it is parsed: "$$" becomes a literal "$", and
// "${NAME}"/"$NAME" become the value of the NAME environment variable (or
// the empty string if it is unset). It deliberately does not delegate to
// os.Expand, which has no escape mechanism for a literal "$".
func expandEnv(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '$' || i == len(raw)-1 {
			sb.WriteByte(c)
			continue
		}

		next := raw[i+1]
		switch {
		case next == '$':
			sb.WriteByte('$')
			i++
		case next == '{':
			end := strings.IndexByte(raw[i+2:], '}')
			if end < 0 {
				sb.WriteByte(c)
				continue
			}
			name := raw[i+2 : i+2+end]
			sb.WriteString(os.Getenv(name))
			i += 2 + end
		case isEnvNameStart(next):
			j := i + 1
			for j < len(raw) && isEnvNameChar(raw[j]) {
				j++
			}
			sb.WriteString(os.Getenv(raw[i+1 : j]))
			i = j - 1
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func isEnvNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isEnvNameChar(c byte) bool {
	return isEnvNameStart(c) || (c >= '0' && c <= '9')
}
