package subtitles

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

var defaultFonts = map[string][]string{
	"default": {"DejaVuSans-Bold.ttf", "LiberationSans-Bold.ttf", "Arial Bold.ttf", "Arial.ttf"},
	"hi":      {"NotoSansDevanagari-Bold.ttf", "Lohit-Devanagari.ttf"},
	"mr":      {"NotoSansDevanagari-Bold.ttf"},
	"bn":      {"NotoSansBengali-Bold.ttf"},
	"ta":      {"NotoSansTamil-Bold.ttf"},
	"ar":      {"NotoNaskhArabic-Bold.ttf", "NotoSansArabic-Bold.ttf"},
	"ja":      {"NotoSansCJK-Bold.ttc", "NotoSansJP-Bold.otf"},
	"zh":      {"NotoSansCJK-Bold.ttc", "NotoSansSC-Bold.otf"},
	"ko":      {"NotoSansCJK-Bold.ttc", "NotoSansKR-Bold.otf"},
	"ru":      {"DejaVuSans-Bold.ttf", "NotoSans-Bold.ttf"},
	"th":      {"NotoSansThai-Bold.ttf"},
}

var defaultOffsets = map[string]float64{
	"default": 0.70,
	"ja":      0.68,
	"zh":      0.68,
	"ko":      0.68,
	"ar":      0.66,
	"hi":      0.66,
}

// langKeys returns the lookup keys for a language, most specific first.
func langKeys(lang string) []string {
	keys := []string{}
	if tag, err := language.Parse(lang); err == nil {
		keys = append(keys, strings.ToLower(tag.String()))
		if base, conf := tag.Base(); conf != language.No {
			keys = append(keys, base.String())
		}
	} else if lang != "" {
		keys = append(keys, strings.ToLower(lang))
	}
	return append(keys, "default")
}

func lookup[T any](m map[string]T, fallback map[string]T, lang string) (T, bool) {
	for _, k := range langKeys(lang) {
		if v, ok := m[k]; ok {
			return v, true
		}
		if v, ok := fallback[k]; ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// fontIndex maps lower-cased font file names to paths under the font dirs.
type fontIndex struct {
	dirs   []string
	once   sync.Once
	byName map[string]string
}

func (fi *fontIndex) find(name string) string {
	fi.once.Do(func() {
		fi.byName = map[string]string{}
		for _, dir := range fi.dirs {
			_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					if d != nil && d.IsDir() {
						return fs.SkipDir
					}
					return nil
				}
				if !d.IsDir() {
					key := strings.ToLower(d.Name())
					if _, seen := fi.byName[key]; !seen {
						fi.byName[key] = path
					}
				}
				return nil
			})
		}
	})
	if filepath.IsAbs(name) {
		return name
	}
	return fi.byName[strings.ToLower(name)]
}
