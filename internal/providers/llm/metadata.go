package llm

import (
	"context"
	"fmt"
	"strings"

	"video-pipeline/internal/types"
)

const metadataSystemPrompt = `You are a YouTube SEO strategist for short vertical videos.
Return JSON with exactly these fields:
- "title": string, a hook under 70 characters, honest, no clickbait lies
- "description": string, 2-4 sentences plus 3 hashtags
- "tags": array of strings, mix of broad and specific
Write in the narration's language.`

// GenerateMetadata writes upload title, description and tags for a finished video.
func (c *Client) GenerateMetadata(ctx context.Context, prompt, script string, titleMax, tagCount int) (types.Metadata, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "TOPIC: %s\n\nNARRATION:\n%s\n\n", prompt, script)
	fmt.Fprintf(&sb, "Generate %d tags.\nRespond ONLY with valid JSON.", tagCount)

	var raw types.Metadata
	if err := c.completeJSON(ctx, "metadata", metadataSystemPrompt, sb.String(), 800, &raw); err != nil {
		return types.Metadata{}, err
	}
	return FitMetadata(raw, titleMax, tagCount), nil
}

// FitMetadata enforces title length and tag count limits.
func FitMetadata(m types.Metadata, titleMax, tagCount int) types.Metadata {
	m.Title = strings.TrimSpace(m.Title)
	if titleMax > 3 && len([]rune(m.Title)) > titleMax {
		r := []rune(m.Title)
		m.Title = string(r[:titleMax-3]) + "..."
	}
	if tagCount > 0 && len(m.Tags) > tagCount {
		m.Tags = m.Tags[:tagCount]
	}
	return m
}
