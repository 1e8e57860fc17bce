package types

// Block names a persisted stage result within a job record.
type Block string

const (
	BlockScript     Block = "script"
	BlockAudio      Block = "audio"
	BlockKeywords   Block = "keywords"
	BlockClips      Block = "clips"
	BlockBaseVideo  Block = "baseVideo"
	BlockFinalVideo Block = "finalVideo"
	BlockUpload     Block = "upload"
)

// Stage names a pipeline step.
type Stage string

const (
	StageScript      Stage = "script"
	StageAudio       Stage = "audio"
	StageKeywords    Stage = "keywords"
	StageClips       Stage = "clips"
	StageConcatenate Stage = "concatenate"
	StageSubtitles   Stage = "subtitles"
	StageUpload      Stage = "upload"
)

// Stages lists the pipeline in dependency order. Upload is optional and always last.
var Stages = []Stage{
	StageScript,
	StageAudio,
	StageKeywords,
	StageClips,
	StageConcatenate,
	StageSubtitles,
	StageUpload,
}

// BlockOf returns the block a stage writes.
func BlockOf(s Stage) Block {
	switch s {
	case StageScript:
		return BlockScript
	case StageAudio:
		return BlockAudio
	case StageKeywords:
		return BlockKeywords
	case StageClips:
		return BlockClips
	case StageConcatenate:
		return BlockBaseVideo
	case StageSubtitles:
		return BlockFinalVideo
	case StageUpload:
		return BlockUpload
	}
	return ""
}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, bool) {
	for _, st := range Stages {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Downstream returns s and every stage after it.
func Downstream(s Stage) []Stage {
	for i, st := range Stages {
		if st == s {
			out := make([]Stage, len(Stages)-i)
			copy(out, Stages[i:])
			return out
		}
	}
	return nil
}

// Status mirrors the highest completed stage. It is a display cache only.
type Status string

const (
	StatusCreated           Status = "created"
	StatusScriptGenerated   Status = "script_generated"
	StatusAudioGenerated    Status = "audio_generated"
	StatusKeywordsGenerated Status = "keywords_generated"
	StatusClipsResolved     Status = "clips_resolved"
	StatusVideoConcatenated Status = "video_concatenated"
	StatusSubtitlesBurned   Status = "completed"
	StatusUploaded          Status = "uploaded"
)

var statusRank = map[Status]int{
	StatusCreated:           0,
	StatusScriptGenerated:   1,
	StatusAudioGenerated:    2,
	StatusKeywordsGenerated: 3,
	StatusClipsResolved:     4,
	StatusVideoConcatenated: 5,
	StatusSubtitlesBurned:   6,
	StatusUploaded:          7,
}

// Rank orders statuses; unknown values rank lowest.
func (s Status) Rank() int {
	return statusRank[s]
}

// DeriveStatus recomputes the display status from block presence.
func DeriveStatus(j *Job) Status {
	switch {
	case j.Upload != nil:
		return StatusUploaded
	case j.FinalVideo != nil:
		return StatusSubtitlesBurned
	case j.BaseVideo != nil:
		return StatusVideoConcatenated
	case j.Clips != nil:
		return StatusClipsResolved
	case j.Keywords != nil:
		return StatusKeywordsGenerated
	case j.Audio != nil:
		return StatusAudioGenerated
	case j.Script != nil:
		return StatusScriptGenerated
	}
	return StatusCreated
}
