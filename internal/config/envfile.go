package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// multiValueKeys may repeat; each occurrence appends a line.
var multiValueKeys = map[string]bool{
	"AGE_RECIPIENT": true,
}

// blockValueKeys may use the KEY=" ... " multi-line form.
var blockValueKeys = map[string]bool{
	"AGE_RECIPIENT":   true,
	"WEBHOOK_HEADERS": true,
}

func parseEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open settings file: %w", err)
	}
	defer file.Close()
	return parseEnv(file)
}

func parseEnv(r io.Reader) (map[string]string, error) {
	raw := make(map[string]string)
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if isComment(trimmed) {
			continue
		}
		trimmed = strings.TrimPrefix(trimmed, "export ")

		key, value, ok := splitKeyValue(trimmed)
		if !ok {
			return nil, fmt.Errorf("line %d: expected KEY=VALUE", lineNo)
		}

		if blockValueKeys[key] && trimmed == key+`="` {
			var blockLines []string
			terminated := false
			for scanner.Scan() {
				lineNo++
				next := strings.TrimSpace(strings.TrimRight(scanner.Text(), "\r"))
				if next == `"` {
					terminated = true
					break
				}
				if !isComment(next) {
					blockLines = append(blockLines, next)
				}
			}
			if !terminated {
				return nil, fmt.Errorf("unterminated multi-line value for %s", key)
			}
			raw[key] = appendLine(raw[key], strings.Join(blockLines, "\n"))
			continue
		}

		if multiValueKeys[key] {
			raw[key] = appendLine(raw[key], value)
		} else {
			raw[key] = value
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading settings file: %w", err)
	}
	return raw, nil
}

func appendLine(existing, value string) string {
	if existing == "" {
		return value
	}
	if value == "" {
		return existing
	}
	return existing + "\n" + value
}

func isComment(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || strings.HasPrefix(trimmed, "#")
}

// splitKeyValue splits KEY=VALUE. Quoted values keep '#' and spaces;
// unquoted values end at an inline " #" comment.
func splitKeyValue(line string) (string, string, bool) {
	key, rest, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return key, "", true
	}

	if q := rest[0]; q == '"' || q == '\'' {
		var b strings.Builder
		escaped := false
		for i := 1; i < len(rest); i++ {
			ch := rest[i]
			switch {
			case escaped:
				b.WriteByte(ch)
				escaped = false
			case ch == '\\' && q == '"':
				escaped = true
			case ch == q:
				return key, b.String(), true
			default:
				b.WriteByte(ch)
			}
		}
		// Unbalanced quote: keep it literally (this is also the block opener).
		return key, rest, true
	}

	for i := 0; i < len(rest); i++ {
		if rest[i] == '#' && (i == 0 || rest[i-1] == ' ' || rest[i-1] == '\t') {
			rest = rest[:i]
			break
		}
	}
	return key, strings.TrimSpace(rest), true
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on", "enabled":
		return true
	}
	return false
}
