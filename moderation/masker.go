// Package moderation masks forbidden terms in outgoing text, mirroring the
// marketplace's content rules client-side so obviously blocked messages
// never waste a round trip. The server stays the final authority.
package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
)

//go:embed patterns/*
var patternFiles embed.FS

// sharedList applies to every message regardless of detected language.
const sharedList = "shared"

// Masker replaces forbidden patterns with a mask rune. Pattern lists are
// keyed by ISO 639-1 code; the list is chosen per message by language
// detection, with the shared list always applied.
type Masker struct {
	machines map[string]*goahocorasick.Machine
	maskRune rune
}

// NewMasker builds one automaton per embedded pattern file.
func NewMasker(maskRune rune) (*Masker, error) {
	lists, err := loadPatternLists()
	if err != nil {
		return nil, err
	}
	machines := make(map[string]*goahocorasick.Machine, len(lists))
	for lang, words := range lists {
		patterns := make([][]rune, len(words))
		for i, w := range words {
			patterns[i] = normalizeRunes([]rune(w))
		}
		machine := new(goahocorasick.Machine)
		if err := machine.Build(patterns); err != nil {
			return nil, fmt.Errorf("building matcher for %q: %w", lang, err)
		}
		machines[lang] = machine
	}
	return &Masker{machines: machines, maskRune: maskRune}, nil
}

// Mask rewrites the body with forbidden spans replaced by the mask rune.
// Spacing and untouched characters are preserved.
func (m *Masker) Mask(body string) string {
	info := whatlanggo.Detect(body)
	lang := info.Lang.Iso6391()

	out := body
	out = m.apply(out, sharedList)
	if lang != "" {
		out = m.apply(out, lang)
	}
	return out
}

func (m *Masker) apply(body, list string) string {
	machine, ok := m.machines[list]
	if !ok {
		return body
	}

	mapping := normalize(body)
	if len(mapping.normalized) == 0 {
		return body
	}
	spans := machine.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return body
	}

	runes := []rune(body)
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(mapping.origIdx) {
			continue
		}
		for i := mapping.origIdx[start]; i <= mapping.origIdx[end-1]; i++ {
			if !unicode.IsSpace(runes[i]) {
				runes[i] = m.maskRune
			}
		}
	}
	return string(runes)
}

func loadPatternLists() (map[string][]string, error) {
	lists := make(map[string][]string)
	err := fs.WalkDir(patternFiles, "patterns", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := patternFiles.ReadFile(p)
		if err != nil {
			return err
		}
		lang := strings.TrimSuffix(path.Base(p), path.Ext(p))
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			word := strings.TrimSpace(scanner.Text())
			if word != "" {
				lists[lang] = append(lists[lang], word)
			}
		}
		return scanner.Err()
	})
	if err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return nil, fmt.Errorf("no pattern lists embedded")
	}
	return lists, nil
}

// textMapping tracks where each normalized rune came from in the original,
// so masking hits the right spot after noise removal.
type textMapping struct {
	normalized []rune
	origIdx    []int
}

func normalize(input string) textMapping {
	orig := []rune(input)
	mapping := textMapping{
		normalized: make([]rune, 0, len(orig)),
		origIdx:    make([]int, 0, len(orig)),
	}
	for i, r := range orig {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		mapping.normalized = append(mapping.normalized, unicode.ToLower(clean))
		mapping.origIdx = append(mapping.origIdx, i)
	}
	return mapping
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune folds common leet substitutions back to their letters.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
