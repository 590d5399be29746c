package bible

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Load reads the hierarchical Bible JSON file at path and returns a [Data]
// source. The file format mirrors bible_hierarchical.json from the web app:
//
//	{"창세기": {"1": {"1": "태초에 하나님이 천지를 창조하시니라", ...}, ...}, ...}
func Load(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bible: open %q: %w", path, err)
	}
	defer f.Close()

	d, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("bible: parse %q: %w", path, err)
	}
	return d, nil
}

// LoadFromReader decodes hierarchical Bible JSON from r. Useful in tests
// where data is constructed from string literals.
func LoadFromReader(r io.Reader) (*Data, error) {
	var raw map[string]map[string]map[string]string
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("bible: decode json: %w", err)
	}

	books := make(map[string]map[int]map[int]string, len(raw))
	for book, chapters := range raw {
		bc := make(map[int]map[int]string, len(chapters))
		for chStr, verses := range chapters {
			ch, err := strconv.Atoi(chStr)
			if err != nil || ch < 1 {
				return nil, fmt.Errorf("bible: book %q: invalid chapter key %q", book, chStr)
			}
			cv := make(map[int]string, len(verses))
			for vStr, text := range verses {
				v, err := strconv.Atoi(vStr)
				if err != nil || v < 1 {
					return nil, fmt.Errorf("bible: book %q chapter %d: invalid verse key %q", book, ch, vStr)
				}
				cv[v] = text
			}
			bc[ch] = cv
		}
		books[book] = bc
	}
	return &Data{books: books}, nil
}
