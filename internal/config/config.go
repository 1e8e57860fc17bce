package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Visuals     VisualsConfig     `yaml:"visuals"`
	Audio       AudioConfig       `yaml:"audio"`
	Subtitles   SubtitlesConfig   `yaml:"subtitles"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Store       StoreConfig       `yaml:"store"`
	Queue       QueueConfig       `yaml:"queue"`
	Objects     ObjectsConfig     `yaml:"objects"`
	Upload      UploadConfig      `yaml:"upload"`
	Retention   RetentionConfig   `yaml:"retention"`
	Worker      WorkerConfig      `yaml:"worker"`
	Paths       PathsConfig       `yaml:"paths"`
	Log         LogConfig         `yaml:"log"`
}

type PipelineConfig struct {
	MaxSegmentSec     float64 `yaml:"max_segment_sec"`
	TrailingPadSec    float64 `yaml:"trailing_pad_sec"`
	CoverageTolerance float64 `yaml:"coverage_tolerance_sec"`
	ProviderAttempts  int     `yaml:"provider_attempts"`
}

type VisualsConfig struct {
	BaseHeight        int     `yaml:"base_height"`
	FPS               int     `yaml:"fps"`
	PixelFormat       string  `yaml:"pixel_format"`
	EffectDurationSec float64 `yaml:"effect_duration_sec"`
	FadeSec           float64 `yaml:"fade_sec"`
	BackgroundBlur    int     `yaml:"background_blur"`
	MinOutputBytes    int64   `yaml:"min_output_bytes"`
	Preset            string  `yaml:"preset"`
	CRF               int     `yaml:"crf"`
}

type AudioConfig struct {
	NarrationVolume float64 `yaml:"narration_volume"`
	MusicVolume     float64 `yaml:"music_volume"`
	MusicLibraryDir string  `yaml:"music_library_dir"`
	// mood -> file name inside MusicLibraryDir
	MoodToTrack map[string]string `yaml:"mood_to_track"`
}

type SubtitlesConfig struct {
	WordGapMs       int                 `yaml:"word_gap_ms"`
	LastWordHoldSec float64             `yaml:"last_word_hold_sec"`
	FontSizeRatio   float64             `yaml:"font_size_ratio"`
	Colors          []string            `yaml:"colors"`
	BorderWidth     int                 `yaml:"border_width"`
	VerticalOffset  map[string]float64  `yaml:"vertical_offset"`
	Fonts           map[string][]string `yaml:"fonts"`
	FontDirs        []string            `yaml:"font_dirs"`
	FallbackFont    string              `yaml:"fallback_font"`
	StopWords       []string            `yaml:"stop_words"`
	MaxFilterLength int                 `yaml:"max_filter_length"`
}

type AcquisitionConfig struct {
	BatchSize         int      `yaml:"batch_size"`
	AspectTolerance   float64  `yaml:"aspect_tolerance"`
	MinImageBytes     int      `yaml:"min_image_bytes"`
	MaxImageBytes     int64    `yaml:"max_image_bytes"`
	MaxCandidates     int      `yaml:"max_candidates"`
	SearchCacheTTL    Duration `yaml:"search_cache_ttl"`
	LibraryDir        string   `yaml:"library_dir"`
	LibraryTags       string   `yaml:"library_tags"`
	PollinationsModel string   `yaml:"pollinations_model"`
}

type ProvidersConfig struct {
	LLM      LLMConfig      `yaml:"llm"`
	TTS      TTSConfig      `yaml:"tts"`
	Pexels   PexelsConfig   `yaml:"pexels"`
	SerpAPI  SerpAPIConfig  `yaml:"serpapi"`
	Jamendo  JamendoConfig  `yaml:"jamendo"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	APIKey      string  `yaml:"-"`
}

type TTSConfig struct {
	Engine  string `yaml:"engine"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Command string `yaml:"command"`
	APIKey  string `yaml:"-"`
}

type PexelsConfig struct {
	BaseURL string `yaml:"base_url"`
	PerPage int    `yaml:"per_page"`
	APIKey  string `yaml:"-"`
}

type SerpAPIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"-"`
}

type JamendoConfig struct {
	BaseURL  string `yaml:"base_url"`
	ClientID string `yaml:"-"`
}

type TimeoutsConfig struct {
	LLM      Duration `yaml:"llm"`
	TTS      Duration `yaml:"tts"`
	Search   Duration `yaml:"search"`
	Download Duration `yaml:"download"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"-"`
	MaxConns    int32  `yaml:"max_conns"`
}

type QueueConfig struct {
	Addr          string `yaml:"-"`
	QueueKey      string `yaml:"queue_key"`
	ProcessingKey string `yaml:"processing_key"`
}

type ObjectsConfig struct {
	Driver     string `yaml:"driver"`
	Endpoint   string `yaml:"endpoint"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	PublicBase string `yaml:"public_base"`
	LocalDir   string `yaml:"local_dir"`
	AccessKey  string `yaml:"-"`
	SecretKey  string `yaml:"-"`
}

type UploadConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Visibility        string `yaml:"visibility"`
	CategoryID        string `yaml:"category_id"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	MadeForKids       bool   `yaml:"made_for_kids"`
	TitleMaxChars     int    `yaml:"title_max_chars"`
	TagsCount         int    `yaml:"tags_count"`
	ClientID          string `yaml:"-"`
	ClientSecret      string `yaml:"-"`
	RefreshToken      string `yaml:"-"`
}

type RetentionConfig struct {
	Enabled bool     `yaml:"enabled"`
	Cron    string   `yaml:"cron"`
	MaxAge  Duration `yaml:"max_age"`
	Batch   int      `yaml:"batch"`
}

type WorkerConfig struct {
	Workers    int      `yaml:"workers"`
	ClaimWait  Duration `yaml:"claim_wait"`
	ReapEvery  Duration `yaml:"reap_every"`
	// StaleAfter is how long a claimed message may go unacknowledged.
	StaleAfter Duration `yaml:"stale_after"`
	OpsAddr    string   `yaml:"ops_addr"`
}

type PathsConfig struct {
	Work string `yaml:"work"`
	Logs string `yaml:"logs"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Env     string `yaml:"env"`
	ToFile  bool   `yaml:"to_file"`
	MaxSize int    `yaml:"max_size_mb"`
}

// Duration is a time.Duration that unmarshals from YAML strings such as "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads the YAML file at path (optional when empty), overlays secrets from the
// environment, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Providers.LLM.APIKey = firstEnv("LLM_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY")
	cfg.Providers.TTS.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	if cmd := os.Getenv("TTS_COMMAND"); cmd != "" {
		cfg.Providers.TTS.Command = cmd
	}
	cfg.Providers.Pexels.APIKey = os.Getenv("PEXELS_API_KEY")
	cfg.Providers.SerpAPI.APIKey = os.Getenv("SERPAPI_KEY")
	cfg.Providers.Jamendo.ClientID = os.Getenv("JAMENDO_CLIENT_ID")
	cfg.Store.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.Queue.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Objects.AccessKey = os.Getenv("MINIO_ACCESS_KEY")
	cfg.Objects.SecretKey = os.Getenv("MINIO_SECRET_KEY")
	if ep := os.Getenv("MINIO_ENDPOINT"); ep != "" {
		cfg.Objects.Endpoint = ep
	}
	cfg.Upload.ClientID = os.Getenv("YOUTUBE_CLIENT_ID")
	cfg.Upload.ClientSecret = os.Getenv("YOUTUBE_CLIENT_SECRET")
	cfg.Upload.RefreshToken = os.Getenv("YOUTUBE_REFRESH_TOKEN")
	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.Log.Env = env
	}
	if n := getEnvInt("WORKERS", 0); n > 0 {
		cfg.Worker.Workers = n
	}
}

func applyDefaults(cfg *Config) {
	p := &cfg.Pipeline
	setFloat(&p.MaxSegmentSec, 2.0)
	setFloat(&p.TrailingPadSec, 0.3)
	setFloat(&p.CoverageTolerance, 0.1)
	setInt(&p.ProviderAttempts, 3)

	v := &cfg.Visuals
	setInt(&v.BaseHeight, 1080)
	setInt(&v.FPS, 25)
	setString(&v.PixelFormat, "yuv420p")
	setFloat(&v.EffectDurationSec, 3.0)
	setFloat(&v.FadeSec, 0.4)
	setInt(&v.BackgroundBlur, 20)
	if v.MinOutputBytes == 0 {
		v.MinOutputBytes = 10 * 1024
	}
	setString(&v.Preset, "veryfast")
	setInt(&v.CRF, 23)

	a := &cfg.Audio
	setFloat(&a.NarrationVolume, 1.0)
	setFloat(&a.MusicVolume, 0.1)

	s := &cfg.Subtitles
	setInt(&s.WordGapMs, 50)
	setFloat(&s.LastWordHoldSec, 1.5)
	setFloat(&s.FontSizeRatio, 0.07)
	if len(s.Colors) == 0 {
		s.Colors = []string{"white", "yellow", "0x00FFFF", "0xFF66CC"}
	}
	setInt(&s.BorderWidth, 4)
	setString(&s.FallbackFont, "DejaVuSans-Bold.ttf")
	if len(s.FontDirs) == 0 {
		s.FontDirs = []string{"/usr/share/fonts", "/usr/local/share/fonts", "/System/Library/Fonts", "/Library/Fonts"}
	}
	setInt(&s.MaxFilterLength, 8000)

	q := &cfg.Acquisition
	setInt(&q.BatchSize, 3)
	setFloat(&q.AspectTolerance, 0.2)
	setInt(&q.MinImageBytes, 5*1024)
	if q.MaxImageBytes == 0 {
		q.MaxImageBytes = 15 * 1024 * 1024
	}
	setInt(&q.MaxCandidates, 8)
	if q.SearchCacheTTL == 0 {
		q.SearchCacheTTL = Duration(10 * time.Minute)
	}
	setString(&q.PollinationsModel, "flux")

	pr := &cfg.Providers
	setString(&pr.LLM.BaseURL, "https://api.groq.com/openai/v1")
	setString(&pr.LLM.Model, "llama-3.3-70b-versatile")
	if pr.LLM.Temperature == 0 {
		pr.LLM.Temperature = 0.7
	}
	setString(&pr.TTS.Engine, "elevenlabs")
	setString(&pr.TTS.BaseURL, "https://api.elevenlabs.io")
	setString(&pr.TTS.Model, "eleven_multilingual_v2")
	setString(&pr.Pexels.BaseURL, "https://api.pexels.com")
	setInt(&pr.Pexels.PerPage, 15)
	setString(&pr.SerpAPI.BaseURL, "https://serpapi.com")
	setString(&pr.Jamendo.BaseURL, "https://api.jamendo.com/v3.0")
	setDuration(&pr.Timeouts.LLM, 30*time.Second)
	setDuration(&pr.Timeouts.TTS, 30*time.Second)
	setDuration(&pr.Timeouts.Search, 10*time.Second)
	setDuration(&pr.Timeouts.Download, 30*time.Second)

	setString(&cfg.Store.Driver, "postgres")
	if cfg.Store.MaxConns == 0 {
		cfg.Store.MaxConns = 10
	}
	setString(&cfg.Queue.QueueKey, "videogen:queue")
	setString(&cfg.Queue.ProcessingKey, "videogen:processing")
	setString(&cfg.Objects.Driver, "minio")
	setString(&cfg.Objects.Bucket, "videogen")
	setString(&cfg.Objects.LocalDir, "./storage")

	setString(&cfg.Upload.Visibility, "private")
	setString(&cfg.Upload.CategoryID, "22")
	setInt(&cfg.Upload.TitleMaxChars, 100)
	setInt(&cfg.Upload.TagsCount, 15)

	setString(&cfg.Retention.Cron, "0 3 * * *")
	setDuration(&cfg.Retention.MaxAge, 30*24*time.Hour)
	setInt(&cfg.Retention.Batch, 100)

	setInt(&cfg.Worker.Workers, 2)
	setDuration(&cfg.Worker.ClaimWait, 5*time.Second)
	setDuration(&cfg.Worker.ReapEvery, 30*time.Second)
	setDuration(&cfg.Worker.StaleAfter, 30*time.Minute)
	setString(&cfg.Worker.OpsAddr, ":9090")

	setString(&cfg.Paths.Work, os.TempDir())
	setString(&cfg.Paths.Logs, "./logs")
	setString(&cfg.Log.Level, "info")
	setString(&cfg.Log.Env, "development")
	setInt(&cfg.Log.MaxSize, 50)
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.MaxSegmentSec <= 0 {
		errs = append(errs, errors.New("pipeline.max_segment_sec must be positive"))
	}
	if c.Pipeline.TrailingPadSec < 0 {
		errs = append(errs, errors.New("pipeline.trailing_pad_sec must not be negative"))
	}
	if c.Acquisition.BatchSize < 1 {
		errs = append(errs, errors.New("acquisition.batch_size must be at least 1"))
	}
	if c.Visuals.EffectDurationSec <= 0 || c.Visuals.FPS <= 0 {
		errs = append(errs, errors.New("visuals.effect_duration_sec and visuals.fps must be positive"))
	}
	if c.Visuals.FadeSec*2 >= c.Visuals.EffectDurationSec {
		errs = append(errs, errors.New("visuals.fade_sec too long for effect duration"))
	}
	if c.Audio.MusicVolume < 0 || c.Audio.NarrationVolume < 0 {
		errs = append(errs, errors.New("audio volumes must not be negative"))
	}
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q not supported", c.Store.Driver))
	}
	switch c.Objects.Driver {
	case "minio", "filesystem":
	default:
		errs = append(errs, fmt.Errorf("objects.driver %q not supported", c.Objects.Driver))
	}
	return errors.Join(errs...)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setFloat(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *Duration, def time.Duration) {
	if *dst == 0 {
		*dst = Duration(def)
	}
}
