// Package nfo opportunistically reads Kodi/Jellyfin-style tvshow.nfo
// metadata sitting next to a media file, turning it into a short
// context block the LLM Adapter folds into its translation prompt.
package nfo

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ShowInfo is the subset of tvshow.nfo fields useful as prompt context.
type ShowInfo struct {
	Title         string
	OriginalTitle string
	Plot          string
	Genre         []string
	Studio        string
	Year          int
	Season        int
}

type xmlTVShow struct {
	Title         string   `xml:"title"`
	OriginalTitle string   `xml:"originaltitle"`
	Plot          string   `xml:"plot"`
	Genres        []string `xml:"genre"`
	Studio        string   `xml:"studio"`
	Year          int      `xml:"year"`
	Season        int      `xml:"season"`
}

// Reader loads ShowInfo from an NFO file path.
type Reader interface {
	Read(path string) (*ShowInfo, error)
}

// DefaultReader parses the Kodi tvshow.nfo XML schema.
type DefaultReader struct{}

func (DefaultReader) Read(path string) (*ShowInfo, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".nfo") {
		return nil, fmt.Errorf("not an nfo file: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed xmlTVShow
	if err := xml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	info := &ShowInfo{
		Title:         strings.TrimSpace(parsed.Title),
		OriginalTitle: strings.TrimSpace(parsed.OriginalTitle),
		Plot:          strings.TrimSpace(parsed.Plot),
		Studio:        strings.TrimSpace(parsed.Studio),
		Year:          parsed.Year,
		Season:        parsed.Season,
	}
	for _, g := range parsed.Genres {
		if genre := strings.TrimSpace(g); genre != "" {
			info.Genre = append(info.Genre, genre)
		}
	}
	return info, nil
}

// nfoNames are the conventional NFO filenames searched for, closest
// directory first.
var nfoNames = []string{"tvshow.nfo", "season.nfo", "show.nfo"}

// Find walks mediaPath's directory and its ancestors looking for the
// first conventional NFO filename, returning "" if none is found.
func Find(mediaPath string) string {
	dir := filepath.Dir(mediaPath)
	for {
		for _, name := range nfoNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Lookup implements pipeline.NFOLookup: it locates and reads the NFO
// file nearest mediaPath and renders it into prompt context text.
type Lookup struct {
	Reader Reader
}

// NewLookup builds a Lookup with the default XML reader.
func NewLookup() *Lookup {
	return &Lookup{Reader: DefaultReader{}}
}

// ContextFor returns a short context block for mediaPath, or "" if no
// NFO file is found or it fails to parse - context is an enrichment,
// never a hard requirement.
func (l *Lookup) ContextFor(mediaPath string) string {
	path := Find(mediaPath)
	if path == "" {
		return ""
	}
	info, err := l.Reader.Read(path)
	if err != nil || info == nil {
		return ""
	}
	return renderContext(info)
}

func renderContext(show *ShowInfo) string {
	var b strings.Builder
	if show.Title != "" {
		fmt.Fprintf(&b, "Show Title: %s\n", show.Title)
	}
	if show.OriginalTitle != "" && show.OriginalTitle != show.Title {
		fmt.Fprintf(&b, "Original Title: %s\n", show.OriginalTitle)
	}
	if len(show.Genre) > 0 {
		fmt.Fprintf(&b, "Genres: %s\n", strings.Join(show.Genre, ", "))
	}
	if show.Studio != "" {
		fmt.Fprintf(&b, "Production Studio: %s\n", show.Studio)
	}
	if show.Year > 0 {
		fmt.Fprintf(&b, "Year: %d\n", show.Year)
	}
	if show.Season > 0 {
		fmt.Fprintf(&b, "Season: %d\n", show.Season)
	}
	if show.Plot != "" {
		fmt.Fprintf(&b, "\nPlot: %s", show.Plot)
	}
	return b.String()
}
