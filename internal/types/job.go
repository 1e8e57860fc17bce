package types

import (
	"time"
)

// ScriptMode selects how the narration script is obtained.
type ScriptMode string

const (
	ScriptModeGenerate ScriptMode = "generate"
	ScriptModeManual   ScriptMode = "manual"
)

// Provenance records whether a block was produced by the pipeline or supplied by the user.
type Provenance string

const (
	ProvenanceGenerated Provenance = "generated"
	ProvenanceUser      Provenance = "user"
)

// InitialParams is set once when the job is created and never mutated.
type InitialParams struct {
	Prompt      string     `json:"prompt"`
	Language    string     `json:"language"`
	Voice       string     `json:"voice"`
	AspectRatio string     `json:"aspectRatio"`
	ScriptMode  ScriptMode `json:"scriptMode"`
}

// ScriptBlock is the output of the script stage.
type ScriptBlock struct {
	Text       string     `json:"text"`
	Mood       string     `json:"mood"`
	Provenance Provenance `json:"provenance"`
}

// AudioBlock is the output of the audio stage.
type AudioBlock struct {
	NarrationRef   string       `json:"narrationRef"`
	NarrationURL   string       `json:"narrationUrl,omitempty"`
	DurationSec    float64      `json:"durationSec"`
	SpeechMarks    []SpeechMark `json:"speechMarks"`
	MusicRef       string       `json:"musicRef,omitempty"`
	MusicTitle     string       `json:"musicTitle,omitempty"`
	NarratedScript string       `json:"narratedScript"`
}

// WordMarks returns only the word-level marks, in order.
func (a *AudioBlock) WordMarks() []SpeechMark {
	if a == nil {
		return nil
	}
	out := make([]SpeechMark, 0, len(a.SpeechMarks))
	for _, m := range a.SpeechMarks {
		if m.Type == MarkWord {
			out = append(out, m)
		}
	}
	return out
}

// KeywordsBlock is the output of the keywords stage.
type KeywordsBlock struct {
	Timings    []ClipTiming `json:"timings"`
	Provenance Provenance   `json:"provenance"`
}

// ClipRef is one resolved clip, in timeline order.
type ClipRef struct {
	Index             int     `json:"index"`
	Label             string  `json:"label"`
	Kind              string  `json:"kind"`
	Source            string  `json:"source"`
	Provider          string  `json:"provider"`
	Ref               string  `json:"ref"`
	OriginURL         string  `json:"originUrl,omitempty"`
	StartTime         float64 `json:"startTime"`
	RequestedDuration float64 `json:"requestedDuration"`
	ActualDuration    float64 `json:"actualDuration"`
}

// ClipsBlock is the output of the clips stage.
type ClipsBlock struct {
	Clips            []ClipRef  `json:"clips"`
	TimingProvenance Provenance `json:"timingProvenance"`
	Provenance       Provenance `json:"provenance"`
}

// VideoBlock references an encoded video in the object store.
type VideoBlock struct {
	Ref         string    `json:"ref"`
	URL         string    `json:"url,omitempty"`
	DurationSec float64   `json:"durationSec"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UploadBlock records a successful upload to the video host.
type UploadBlock struct {
	VideoID    string    `json:"videoId"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Job is one user-initiated video request. Stage blocks are nil until their stage succeeds.
type Job struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	InitialParams InitialParams  `json:"initialParams"`
	Script        *ScriptBlock   `json:"script,omitempty"`
	Audio         *AudioBlock    `json:"audio,omitempty"`
	Keywords      *KeywordsBlock `json:"keywords,omitempty"`
	Clips         *ClipsBlock    `json:"clips,omitempty"`
	BaseVideo     *VideoBlock    `json:"baseVideo,omitempty"`
	FinalVideo    *VideoBlock    `json:"finalVideo,omitempty"`
	Upload        *UploadBlock   `json:"upload,omitempty"`
	Status        Status         `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Terminal reports whether the job has produced its final video.
func (j *Job) Terminal() bool {
	return j.FinalVideo != nil
}

// Has reports whether the given block is present on the job.
func (j *Job) Has(b Block) bool {
	switch b {
	case BlockScript:
		return j.Script != nil
	case BlockAudio:
		return j.Audio != nil
	case BlockKeywords:
		return j.Keywords != nil
	case BlockClips:
		return j.Clips != nil
	case BlockBaseVideo:
		return j.BaseVideo != nil
	case BlockFinalVideo:
		return j.FinalVideo != nil
	case BlockUpload:
		return j.Upload != nil
	}
	return false
}

// Block returns the block value for b, or nil if absent.
func (j *Job) Block(b Block) any {
	switch b {
	case BlockScript:
		if j.Script != nil {
			return j.Script
		}
	case BlockAudio:
		if j.Audio != nil {
			return j.Audio
		}
	case BlockKeywords:
		if j.Keywords != nil {
			return j.Keywords
		}
	case BlockClips:
		if j.Clips != nil {
			return j.Clips
		}
	case BlockBaseVideo:
		if j.BaseVideo != nil {
			return j.BaseVideo
		}
	case BlockFinalVideo:
		if j.FinalVideo != nil {
			return j.FinalVideo
		}
	case BlockUpload:
		if j.Upload != nil {
			return j.Upload
		}
	}
	return nil
}

// SetBlock assigns a block value. A nil value clears the block.
func (j *Job) SetBlock(b Block, v any) error {
	switch b {
	case BlockScript:
		return assign(&j.Script, v, b)
	case BlockAudio:
		return assign(&j.Audio, v, b)
	case BlockKeywords:
		return assign(&j.Keywords, v, b)
	case BlockClips:
		return assign(&j.Clips, v, b)
	case BlockBaseVideo:
		return assign(&j.BaseVideo, v, b)
	case BlockFinalVideo:
		return assign(&j.FinalVideo, v, b)
	case BlockUpload:
		return assign(&j.Upload, v, b)
	}
	return &ValidationError{Subject: "block", Reason: "unknown block " + string(b)}
}

func assign[T any](dst **T, v any, b Block) error {
	if v == nil {
		*dst = nil
		return nil
	}
	switch val := v.(type) {
	case *T:
		*dst = val
	case T:
		*dst = &val
	default:
		return &ValidationError{Subject: "block", Reason: "wrong value type for " + string(b)}
	}
	return nil
}
