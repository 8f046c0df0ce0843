package styles

import (
	"regexp"
	"strings"
)

// Transformation marks instructions that also rewrite the reply text itself,
// not just its delivery (e.g. "summarize like a pirate").
type Transformation string

const (
	TransformSummarize Transformation = "summarize"
	TransformRewrite   Transformation = "rewrite"
)

// Instruction is the result of resolving free-form instruction text.
type Instruction struct {
	Style          *Style
	RawStyle       string // the captured style phrase, untouched
	TransformText  bool
	Transformation Transformation
}

// transformPatterns detect instructions that request a text transformation.
// Tried before stylePatterns; declaration order is significant.
var transformPatterns = []*regexp.Regexp{
	// "summarize like a pirate"
	regexp.MustCompile(`(?i)^summar(?:y|ize)\s+(?:it\s+)?(?:like|as)\s+(?:a\s+|an\s+)?(.+)$`),

	// "rewrite as a villain"
	regexp.MustCompile(`(?i)^rewrite\s+(?:it\s+)?(?:like|as)\s+(?:a\s+|an\s+)?(.+)$`),

	// "resuma como um pirata"
	regexp.MustCompile(`(?i)^resuma\s+(?:isso\s+|isto\s+)?como\s+(?:um\s+|uma\s+)?(.+)$`),

	// "reescreva como um vilão"
	regexp.MustCompile(`(?i)^reescreva\s+(?:isso\s+|isto\s+)?como\s+(?:um\s+|uma\s+)?(.+)$`),
}

// stylePatterns detect plain style-carrier instructions. Tried in order and
// the first pattern matching the whole trimmed input wins; several patterns
// can match the same input with different captures, so the order is
// load-bearing.
var stylePatterns = []*regexp.Regexp{
	// "say it like a villain"
	regexp.MustCompile(`(?i)^(?:say|speak|read)\s+(?:it|this|that)\s+(?:like|as)\s+(?:a\s+|an\s+)?(.+)$`),

	// "read it dramatically"
	regexp.MustCompile(`(?i)^(?:say|speak|read)\s+(?:it|this|that)\s+(.+ly)$`),

	// "say this like you're a villain"
	regexp.MustCompile(`(?i)^(?:say|speak|read)\s+(?:it|this|that)\s+(?:like\s+)?(?:you(?:'re| are)\s+)?(?:a\s+|an\s+)?(.+)$`),

	// "voice: villain"
	regexp.MustCompile(`(?i)^voice[:\s]+(.+)$`),

	// "villain voice"
	regexp.MustCompile(`(?i)^(.+)\s+voice$`),

	// "in a villain voice"
	regexp.MustCompile(`(?i)^in\s+(?:a\s+|an\s+)?(.+)\s+voice$`),

	// "sound like a villain"
	regexp.MustCompile(`(?i)^sound\s+(?:like\s+)?(?:a\s+|an\s+)?(.+)$`),

	// "be dramatic"
	regexp.MustCompile(`(?i)^be\s+(?:a\s+|an\s+)?(.+)$`),

	// "dramatically"
	regexp.MustCompile(`(?i)^(.+ly)$`),

	// "as a villain"
	regexp.MustCompile(`(?i)^as\s+(?:a\s+|an\s+)?(.+)$`),

	// "whisper this"
	regexp.MustCompile(`(?i)^(whisper|shout|yell|scream)\s+(?:it|this|that)?$`),

	// "do it villain style"
	regexp.MustCompile(`(?i)^(?:do\s+(?:it|this)\s+)?(.+)\s+style$`),

	// "fale como um vilão" / "responda como pirata"
	regexp.MustCompile(`(?i)^(?:fale|diga|leia|responda)\s+(?:isso\s+|isto\s+)?como\s+(?:um\s+|uma\s+)?(.+)$`),

	// "voz de pirata"
	regexp.MustCompile(`(?i)^voz\s+de\s+(?:um\s+|uma\s+)?(.+)$`),

	// "estilo vilão"
	regexp.MustCompile(`(?i)^estilo\s+(?:de\s+)?(.+)$`),

	// "seja um robô"
	regexp.MustCompile(`(?i)^seja\s+(?:um\s+|uma\s+)?(.+)$`),

	// "imite um pirata"
	regexp.MustCompile(`(?i)^imite\s+(?:um\s+|uma\s+)?(.+)$`),

	// "dramaticamente"
	regexp.MustCompile(`(?i)^(.+mente)$`),

	// "sussurre isso"
	regexp.MustCompile(`(?i)^(sussurre|grite|berre)\s*(?:isso|isto)?$`),
}

// adverbStyles maps adverbs (exact match only) to canonical style keys.
var adverbStyles = map[string]string{
	"dramatically":      "trailer",
	"menacingly":        "villain",
	"excitedly":         "excited",
	"angrily":           "angry",
	"sarcastically":     "sarcastic",
	"robotically":       "robot",
	"softly":            "whisper",
	"quietly":           "whisper",
	"loudly":            "drill_sergeant",
	"boredly":           "bored",
	"sleepily":          "bored",
	"professionally":    "news",
	"theatrically":      "shakespearean",
	"calmly":            "nature_documentary",
	"dramaticamente":    "trailer",
	"roboticamente":     "robot",
	"suavemente":        "whisper",
	"calmamente":        "nature_documentary",
	"profissionalmente": "news",
	"teatralmente":      "shakespearean",
	"furiosamente":      "angry",
	"sussurre":          "whisper",
	"grite":             "drill_sergeant",
	"berre":             "drill_sergeant",
}

type descriptorKeyword struct {
	keyword  string
	styleKey string
}

// descriptorKeywords is a secondary synonym table checked after the alias
// scan, matched by substring in declaration order.
var descriptorKeywords = []descriptorKeyword{
	{"movie", "trailer"},
	{"epic", "trailer"},
	{"evil", "villain"},
	{"dark", "villain"},
	{"gentle", "whisper"},
	{"soft", "whisper"},
	{"happy", "excited"},
	{"energetic", "excited"},
	{"monotone", "robot"},
	{"flat", "robot"},
	{"military", "drill_sergeant"},
	{"yelling", "drill_sergeant"},
	{"nature", "nature_documentary"},
	{"documentary", "nature_documentary"},
	{"sport", "sports"},
	{"commentary", "sports"},
	{"old", "grandma"},
	{"sweet", "grandma"},
	{"ironic", "sarcastic"},
	{"dry", "sarcastic"},
	{"mad", "angry"},
	{"frustrated", "angry"},
	{"tired", "bored"},
	{"disinterested", "bored"},
	{"anchor", "news"},
	{"reporter", "news"},
	{"theater", "shakespearean"},
	{"classical", "shakespearean"},
}

// Resolve maps free-form instruction text to a style descriptor. It is
// deterministic and returns nil when the text is not an instruction.
func Resolve(text string) *Instruction {
	trimmed := strings.TrimSpace(text)

	// Transformation templates are tried first so "summarize like a pirate"
	// is not swallowed by the generic style-carrier patterns.
	for _, pattern := range transformPatterns {
		match := pattern.FindStringSubmatch(trimmed)
		if match == nil {
			continue
		}
		rawStyle := strings.TrimSpace(match[1])
		if style := matchPhrase(rawStyle); style != nil {
			lower := strings.ToLower(trimmed)
			transformation := TransformRewrite
			if strings.HasPrefix(lower, "summar") || strings.HasPrefix(lower, "resuma") {
				transformation = TransformSummarize
			}
			return &Instruction{
				Style:          style,
				RawStyle:       rawStyle,
				TransformText:  true,
				Transformation: transformation,
			}
		}
	}

	for _, pattern := range stylePatterns {
		match := pattern.FindStringSubmatch(trimmed)
		if match == nil {
			continue
		}
		rawStyle := strings.TrimSpace(match[1])
		if style := matchPhrase(rawStyle); style != nil {
			return &Instruction{Style: style, RawStyle: rawStyle}
		}
	}

	// The whole message may simply be a style name.
	if style := matchPhrase(trimmed); style != nil {
		return &Instruction{Style: style, RawStyle: trimmed}
	}

	return nil
}

// matchPhrase resolves a captured style phrase to a catalog entry, trying the
// adverb table, the canonical keys, the ordered alias scan, and finally the
// descriptor-keyword table.
//
// The alias scan uses bidirectional substring containment, so an empty phrase
// vacuously matches every alias and resolves to the first catalog entry.
// Callers therefore must not rely on emptiness as a guard; this matches the
// long-standing production behavior.
func matchPhrase(input string) *Style {
	normalized := strings.ToLower(strings.TrimSpace(input))

	if key, ok := adverbStyles[normalized]; ok {
		return Get(key)
	}

	if style := Get(normalized); style != nil {
		return style
	}

	for i := range Catalog {
		entry := &Catalog[i]
		if strings.Contains(normalized, entry.Key) {
			return entry
		}
		for _, alias := range entry.Aliases {
			if strings.Contains(normalized, alias) || strings.Contains(alias, normalized) {
				return entry
			}
		}
	}

	for _, dk := range descriptorKeywords {
		if strings.Contains(normalized, dk.keyword) {
			return Get(dk.styleKey)
		}
	}

	return nil
}

// IsInstruction reports whether the text resolves to a style.
func IsInstruction(text string) bool {
	return Resolve(text) != nil
}

// Extract returns the resolved style together with the input stripped of
// every matched template pattern. Stripping is best-effort; residual text is
// kept even when it is imperfect.
func Extract(text string) (*Style, string) {
	parsed := Resolve(text)
	if parsed == nil {
		return nil, text
	}

	clean := text
	for _, pattern := range stylePatterns {
		clean = strings.TrimSpace(pattern.ReplaceAllString(clean, ""))
	}
	for _, pattern := range transformPatterns {
		clean = strings.TrimSpace(pattern.ReplaceAllString(clean, ""))
	}

	return parsed.Style, clean
}
