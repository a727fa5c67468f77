// Package words resolves Chinese characters to catalog entries,
// creating them on first sighting from a dictionary scrape, and tracks
// each user's past wrong words.
package words

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// WordInfo is the dictionary's description of a single character.
type WordInfo struct {
	ID        string `json:"id"`
	Word      string `json:"word"`
	English   string `json:"english"`
	StrokeGIF string `json:"stroke_gif"`
	Pingyin   struct {
		Cantonese []PronunciationEntry `json:"cantonese"`
		Putonghua []PronunciationEntry `json:"putonghua"`
	} `json:"pingyin"`
}

// PronunciationEntry pairs a romanized display form with the audio
// file code the dictionary hosts it under.
type PronunciationEntry struct {
	Display string `json:"display"`
	Code    string `json:"code"`
}

// Scraper looks a character up in the external dictionary and derives
// audio URLs from its pronunciation codes.
type Scraper interface {
	Lookup(ctx context.Context, word string) (*WordInfo, error)
	PronunciationURL(code string) string
}

const (
	defaultDictBase  = "https://www.secmenu.com/apps/words/www/words.json.web.php"
	defaultAudioBase = "https://www.secmenu.com/apps/words/www/audio"
)

// DictScraper scrapes the JSONP dictionary API.
type DictScraper struct {
	apiBase   string
	audioBase string
	http      *http.Client
}

// NewDictScraper builds a scraper; empty bases select the public
// dictionary endpoints.
func NewDictScraper(apiBase, audioBase string) *DictScraper {
	if apiBase == "" {
		apiBase = defaultDictBase
	}
	if audioBase == "" {
		audioBase = defaultAudioBase
	}
	return &DictScraper{
		apiBase:   apiBase,
		audioBase: strings.TrimRight(audioBase, "/"),
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Lookup fetches and decodes the dictionary record for one character.
func (s *DictScraper) Lookup(ctx context.Context, word string) (*WordInfo, error) {
	params := url.Values{
		"action":   {"downloadWord"},
		"word":     {word},
		"callback": {"wordCallBack"},
		"_":        {strconv.FormatInt(time.Now().UnixMilli(), 10)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build dictionary request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dictionary: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dictionary: lookup %q returned %d", word, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("dictionary: read response: %w", err)
	}
	// A near-empty payload means the character is unknown.
	if len(body) < 20 {
		return nil, fmt.Errorf("dictionary: no entry for %q", word)
	}

	var info WordInfo
	if err := json.Unmarshal([]byte(stripJSONP(string(body))), &info); err != nil {
		return nil, fmt.Errorf("dictionary: decode entry for %q: %w", word, err)
	}
	return &info, nil
}

// PronunciationURL derives the Cantonese audio URL for a
// pronunciation code.
func (s *DictScraper) PronunciationURL(code string) string {
	return fmt.Sprintf("%s/cantonese/%s.mp3", s.audioBase, code)
}

// stripJSONP unwraps wordCallBack(...) padding around the JSON body.
func stripJSONP(body string) string {
	body = strings.TrimSpace(body)
	if rest, ok := strings.CutPrefix(body, "wordCallBack("); ok {
		body = rest
	}
	return strings.TrimSuffix(body, ")")
}
