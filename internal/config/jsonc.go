package config

import "strings"

// StripComments removes // and /* */ comments from JSONC content so the
// result parses as plain JSON. Comment markers inside string literals are
// left alone.
func StripComments(data []byte) []byte {
	input := string(data)
	var out strings.Builder
	out.Grow(len(input))

	inString := false
	i := 0
	for i < len(input) {
		if input[i] == '"' && (i == 0 || input[i-1] != '\\') {
			inString = !inString
			out.WriteByte(input[i])
			i++
			continue
		}

		if !inString && i+1 < len(input) && input[i] == '/' {
			switch input[i+1] {
			case '/':
				for i < len(input) && input[i] != '\n' {
					i++
				}
				continue
			case '*':
				i += 2
				for i+1 < len(input) {
					if input[i] == '*' && input[i+1] == '/' {
						i += 2
						break
					}
					i++
				}
				continue
			}
		}

		out.WriteByte(input[i])
		i++
	}

	return []byte(out.String())
}
