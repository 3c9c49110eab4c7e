package speech

import "strings"

// MaxChunkChars is the per-request text limit shared by the hosted
// synthesis backends.
const MaxChunkChars = 300

// SplitLongText splits text into sentence-aligned chunks no longer than
// maxLen. A single sentence longer than maxLen becomes its own chunk rather
// than being cut mid-word.
func SplitLongText(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = MaxChunkChars
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	current := ""
	for _, sentence := range splitSentences(text) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		switch {
		case current == "":
			current = sentence
		case len(current)+1+len(sentence) <= maxLen:
			current += " " + sentence
		default:
			chunks = append(chunks, current)
			current = sentence
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

func splitSentences(text string) []string {
	replacer := strings.NewReplacer(". ", ".\n", "! ", "!\n", "? ", "?\n")
	return strings.Split(replacer.Replace(text), "\n")
}
