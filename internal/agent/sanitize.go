package agent

import (
	"regexp"
	"strings"
)

// SanitizeAssistantText strips artifacts models echo from the conversation
// format before the text is persisted: message metadata tags, reasoning tags
// and speaker prefixes.
func SanitizeAssistantText(content, agentName string) string {
	if content == "" {
		return content
	}
	content = stripMessageMetadata(content)
	content = stripThinkingTags(content)
	content = stripSpeakerPrefix(content, agentName)
	content = collapseConsecutiveDuplicateBlocks(content)
	return strings.TrimLeft(content, "\n")
}

var messageMetadataPattern = regexp.MustCompile(`(?s)<message-metadata\b[^>]*/?>\s*`)

func stripMessageMetadata(content string) string {
	if !strings.Contains(content, "<message-metadata") {
		return content
	}
	return messageMetadataPattern.ReplaceAllString(content, "")
}

// Go regexp has no backreferences, so one pattern per tag.
var thinkingTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>\s*`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>\s*`),
	regexp.MustCompile(`(?is)<thought>.*?</thought>\s*`),
}

func stripThinkingTags(content string) string {
	lower := strings.ToLower(content)
	if !strings.Contains(lower, "<think") && !strings.Contains(lower, "<thought") {
		return content
	}
	for _, pat := range thinkingTagPatterns {
		content = pat.ReplaceAllString(content, "")
	}
	return content
}

var agentTagPrefix = regexp.MustCompile(`^\s*\(agent:[^)]*\)\s*`)

// stripSpeakerPrefix removes "(agent: X)" and "Name:" prefixes at the start.
func stripSpeakerPrefix(content, agentName string) string {
	content = agentTagPrefix.ReplaceAllString(content, "")
	if agentName == "" {
		return content
	}
	trimmed := strings.TrimLeft(content, " \t")
	if prefix := agentName + ":"; strings.HasPrefix(trimmed, prefix) {
		return strings.TrimLeft(trimmed[len(prefix):], " \t")
	}
	return content
}

func collapseConsecutiveDuplicateBlocks(content string) string {
	blocks := strings.Split(content, "\n\n")
	if len(blocks) <= 1 {
		return content
	}
	var result []string
	for _, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if len(result) > 0 && trimmed != "" && trimmed == strings.TrimSpace(result[len(result)-1]) {
			continue
		}
		result = append(result, block)
	}
	return strings.Join(result, "\n\n")
}
