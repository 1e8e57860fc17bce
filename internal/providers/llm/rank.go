package llm

import (
	"context"
	"fmt"
	"strings"

	"video-pipeline/internal/types"
)

const rankSystemPrompt = `You choose the stock clip that best illustrates a segment of a narrated video.
You get the full script, the segment, and numbered candidates with their metadata.
Prefer candidates not on the exclusion list. Return JSON: {"index": <number>}.`

// Rank returns the index of the best candidate in req.Candidates.
func (c *Client) Rank(ctx context.Context, req types.RankRequest) (int, error) {
	if len(req.Candidates) == 0 {
		return 0, fmt.Errorf("rank: no candidates")
	}
	excluded := make(map[string]bool, len(req.Exclude))
	for _, k := range req.Exclude {
		excluded[k] = true
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "FULL SCRIPT:\n%s\n\nSEGMENT: %s\nSEARCH LABEL: %s\n\nCANDIDATES:\n", req.Context, req.Segment, req.Label)
	for i, cand := range req.Candidates {
		fmt.Fprintf(&sb, "%d. %dx%d", i, cand.Width, cand.Height)
		if cand.Duration > 0 {
			fmt.Fprintf(&sb, ", %.1fs", cand.Duration)
		}
		if len(cand.Tags) > 0 {
			fmt.Fprintf(&sb, ", tags: %s", strings.Join(cand.Tags, ", "))
		}
		if cand.Description != "" {
			fmt.Fprintf(&sb, ", %s", truncate(cand.Description, 120))
		}
		if excluded[cand.Key()] {
			sb.WriteString(" [ALREADY USED]")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nRespond ONLY with valid JSON.")

	var out struct {
		Index *int `json:"index"`
	}
	if err := c.completeJSON(ctx, "rank", rankSystemPrompt, sb.String(), 20, &out); err != nil {
		return 0, err
	}
	if out.Index == nil || *out.Index < 0 || *out.Index >= len(req.Candidates) {
		return 0, &types.ProviderError{Provider: "llm", Op: "rank", Err: fmt.Errorf("index out of range")}
	}
	return *out.Index, nil
}
