package types

// LabelRequest asks the segment labeler for a visual label.
type LabelRequest struct {
	Text     string
	Context  string
	Language string
	// Exclude lists labels already used earlier in the same job.
	Exclude []string
}

// Labeling is the labeler's answer: ordered alternatives plus a kind.
type Labeling struct {
	Labels []string  `json:"labels"`
	Kind   LabelKind `json:"kind"`
}

// MediaKind distinguishes moving footage from stills.
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaPhoto MediaKind = "photo"
)

// Candidate is one search hit from a stock or image provider.
type Candidate struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	Kind        MediaKind `json:"kind"`
	URL         string    `json:"url"`
	PageURL     string    `json:"pageUrl,omitempty"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Duration    float64   `json:"duration,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Description string    `json:"description,omitempty"`
	// LocalPath is set by providers whose candidates are already on disk.
	LocalPath string `json:"-"`
}

// Aspect returns width/height, or 0 when unknown.
func (c Candidate) Aspect() float64 {
	if c.Width <= 0 || c.Height <= 0 {
		return 0
	}
	return float64(c.Width) / float64(c.Height)
}

// Key identifies a candidate across queries for de-duplication.
func (c Candidate) Key() string {
	if c.ID != "" {
		return c.Provider + ":" + c.ID
	}
	return c.Provider + ":" + c.URL
}

// SearchQuery is what stock and image providers receive.
type SearchQuery struct {
	Query       string
	Orientation string
	Aspect      float64
	Limit       int
}

// RankRequest asks the best-candidate ranker to pick one candidate.
type RankRequest struct {
	Context    string
	Segment    string
	Label      string
	Candidates []Candidate
	// Exclude lists candidate keys already selected in the same job.
	Exclude []string
}

// Metadata is the generated title, description and tags for an upload.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}
