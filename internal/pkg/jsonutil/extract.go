// Package jsonutil pulls JSON payloads out of free-form model output,
// tolerating markdown fences and chain-of-thought text around the payload.
package jsonutil

import (
	"strings"
)

const codeFence = "```"

// ExtractObject returns the first balanced JSON object in raw, looking
// inside a markdown code fence first. The offset is the byte index of the
// payload inside raw, useful for isolating any leading reasoning text.
func ExtractObject(raw string) (string, bool) {
	out, _, ok := extract(raw)
	return out, ok
}

func ExtractObjectWithOffset(raw string) (string, int, bool) {
	return extract(raw)
}

func extract(raw string) (string, int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", -1, false
	}
	// offsets stay in raw's coordinates so callers can slice it directly
	base := strings.Index(raw, trimmed)
	if obj, offset, ok := extractFromFence(trimmed); ok {
		return obj, base + offset, true
	}
	obj, offset, ok := scanBalanced(trimmed, '{', '}')
	if !ok {
		return "", -1, false
	}
	return obj, base + offset, true
}

func extractFromFence(raw string) (string, int, bool) {
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return "", -1, false
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return "", -1, false
	}
	block := rest[:end]
	offset := start + len(codeFence)
	block = strings.TrimLeft(block, "\r\n")
	// drop a language tag like ```json on the fence line
	if idx := strings.Index(block, "\n"); idx != -1 {
		first := strings.TrimSpace(block[:idx])
		if first != "" && !strings.ContainsAny(first, "[{") {
			block = block[idx+1:]
			offset += idx + 1
		}
	}
	block = strings.TrimSpace(block)
	if block == "" {
		return "", -1, false
	}
	if obj, rel, ok := scanBalanced(block, '{', '}'); ok {
		return obj, offset + rel, true
	}
	return block, offset, true
}

// scanBalanced finds the first balanced open..close span, skipping over
// string literals and escapes.
func scanBalanced(raw string, open, close byte) (string, int, bool) {
	start := strings.IndexByte(raw, open)
	if start == -1 {
		return "", -1, false
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return strings.TrimSpace(raw[start : i+1]), start, true
			}
		}
	}
	return "", -1, false
}
