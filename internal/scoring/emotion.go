package scoring

import (
	"embed"
	"strings"

	"gopkg.in/yaml.v3"
)

// lexiconFile is baked into the binary at compile time, the same way the
// teacher's internal/prompt package embeds its prompt-atom corpus.
//
//go:embed lexicon.yaml
var lexiconFile embed.FS

type lexicon struct {
	Positive struct {
		Strong   []string `yaml:"strong"`
		Moderate []string `yaml:"moderate"`
	} `yaml:"positive"`
	Negative struct {
		Strong   []string `yaml:"strong"`
		Moderate []string `yaml:"moderate"`
	} `yaml:"negative"`
	Modifiers struct {
		Amplify []string `yaml:"amplify"`
		Dampen  []string `yaml:"dampen"`
	} `yaml:"modifiers"`
}

func loadLexicon() (lexicon, error) {
	var lex lexicon
	raw, err := lexiconFile.ReadFile("lexicon.yaml")
	if err != nil {
		return lex, err
	}
	if err := yaml.Unmarshal(raw, &lex); err != nil {
		return lex, err
	}
	return lex, nil
}

// emotionScanner scans content for emotionally-weighted words and intensity
// modifiers (spec §4.8's emotional-weight rule).
type emotionScanner struct {
	strongPositive   map[string]bool
	moderatePositive map[string]bool
	strongNegative   map[string]bool
	moderateNegative map[string]bool
	amplify          map[string]bool
	dampen           map[string]bool
}

func newEmotionScanner() *emotionScanner {
	lex, err := loadLexicon()
	if err != nil {
		return &emotionScanner{}
	}
	return &emotionScanner{
		strongPositive:   toSet(lex.Positive.Strong),
		moderatePositive: toSet(lex.Positive.Moderate),
		strongNegative:   toSet(lex.Negative.Strong),
		moderateNegative: toSet(lex.Negative.Moderate),
		amplify:          toSet(lex.Modifiers.Amplify),
		dampen:           toSet(lex.Modifiers.Dampen),
	}
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// score returns a signed intensity in [-1, 1]: negative for negative
// sentiment, positive for positive, scaled by the strongest match found and
// any adjacent intensity modifier.
func (s *emotionScanner) score(content string) float64 {
	tokens := strings.Fields(strings.ToLower(content))
	var best float64

	for i, tok := range tokens {
		tok = strings.Trim(tok, ".,!?;:\"'()")
		var magnitude, sign float64
		switch {
		case s.strongPositive[tok]:
			magnitude, sign = 1.0, 1
		case s.moderatePositive[tok]:
			magnitude, sign = 0.5, 1
		case s.strongNegative[tok]:
			magnitude, sign = 1.0, -1
		case s.moderateNegative[tok]:
			magnitude, sign = 0.5, -1
		default:
			continue
		}

		if i > 0 {
			prev := strings.Trim(tokens[i-1], ".,!?;:\"'()")
			if s.amplify[prev] {
				magnitude = min1(magnitude * 1.5)
			} else if s.dampen[prev] {
				magnitude *= 0.5
			}
		}

		signed := magnitude * sign
		if absf(signed) > absf(best) {
			best = signed
		}
	}
	return best
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
