package llm

import (
	"context"
	"fmt"
	"strings"

	"video-pipeline/internal/types"
)

const labelSystemPrompt = `You pick visuals for segments of a narrated short video.
For the segment, return JSON: {"labels": ["..."], "kind": "search" | "stock"}.
- "labels": 1 to 3 alternatives, best first, each 1-4 English words usable as an image or footage search query.
- "kind": "search" when the segment names a specific real person, place, landmark, artwork, product or event that needs an exact photo; otherwise "stock".
- Avoid repeating labels from the exclusion list unless nothing else fits.`

// Label asks for a visual label for one segment.
func (c *Client) Label(ctx context.Context, req types.LabelRequest) (types.Labeling, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "FULL SCRIPT:\n%s\n\n", req.Context)
	fmt.Fprintf(&sb, "SEGMENT:\n%s\n\n", req.Text)
	if len(req.Exclude) > 0 {
		fmt.Fprintf(&sb, "ALREADY USED: %s\n\n", strings.Join(req.Exclude, "; "))
	}
	sb.WriteString("Respond ONLY with valid JSON.")

	var out types.Labeling
	if err := c.completeJSON(ctx, "label", labelSystemPrompt, sb.String(), 120, &out); err != nil {
		return types.Labeling{}, err
	}

	var labels []string
	for _, l := range out.Labels {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	if len(labels) == 0 {
		return types.Labeling{}, &types.ProviderError{Provider: "llm", Op: "label", Err: fmt.Errorf("no labels in reply")}
	}
	if len(labels) > 3 {
		labels = labels[:3]
	}
	kind := types.KindStock
	if strings.EqualFold(string(out.Kind), string(types.KindSearch)) {
		kind = types.KindSearch
	}
	return types.Labeling{Labels: labels, Kind: kind}, nil
}
