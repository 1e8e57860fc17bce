package llm

import (
	"context"
	"fmt"
	"strings"

	"video-pipeline/internal/types"
)

const scriptSystemPrompt = `You write narration for short vertical videos.
Rules:
- At most 50 words, about 20 seconds when spoken.
- Plain spoken sentences only. No headings, emojis, hashtags, stage directions or quotes around the text.
- Open with a hook in the first sentence.
- Write in the requested language.`

// Moods is the closed vocabulary the mood classifier answers from.
var Moods = []string{"happy", "sad", "energetic", "calm", "dramatic", "inspirational", "mysterious", "romantic"}

// DefaultMood is used when the classifier reply is outside the vocabulary.
const DefaultMood = "inspirational"

// WriteScript turns a prompt into narration text. prior, when set, is an earlier
// script the user wants reworked.
func (c *Client) WriteScript(ctx context.Context, prompt, language, prior string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "LANGUAGE: %s\n\n", languageName(language))
	fmt.Fprintf(&sb, "TOPIC:\n%s\n\n", strings.TrimSpace(prompt))
	if prior != "" {
		fmt.Fprintf(&sb, "PREVIOUS VERSION (improve on it, keep the facts):\n%s\n\n", prior)
	}
	sb.WriteString("Respond with the narration text only.")

	text, err := c.complete(ctx, "script", scriptSystemPrompt, sb.String(), false, 400)
	if err != nil {
		return "", err
	}
	text = strings.Trim(strings.TrimSpace(text), `"`)
	if text == "" {
		return "", &types.ProviderError{Provider: "llm", Op: "script", Err: fmt.Errorf("empty script")}
	}
	return text, nil
}

// ClassifyMood maps narration to one label from Moods.
func (c *Client) ClassifyMood(ctx context.Context, text string) (string, error) {
	system := "Classify the mood of the narration. Answer with exactly one word from this list: " +
		strings.Join(Moods, ", ") + "."
	reply, err := c.complete(ctx, "mood", system, text, false, 10)
	if err != nil {
		return "", err
	}
	return ParseMood(reply), nil
}

// ParseMood extracts the first vocabulary word from a classifier reply.
func ParseMood(reply string) string {
	for _, w := range strings.FieldsFunc(strings.ToLower(reply), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		for _, m := range Moods {
			if w == m {
				return m
			}
		}
	}
	return DefaultMood
}

func languageName(code string) string {
	names := map[string]string{
		"en": "English", "es": "Spanish", "fr": "French", "de": "German", "it": "Italian",
		"pt": "Portuguese", "nl": "Dutch", "pl": "Polish", "tr": "Turkish", "ru": "Russian",
		"ar": "Arabic", "hi": "Hindi", "ja": "Japanese", "ko": "Korean", "zh": "Chinese",
	}
	base := strings.ToLower(strings.SplitN(code, "-", 2)[0])
	if n, ok := names[base]; ok {
		return n
	}
	return code
}
