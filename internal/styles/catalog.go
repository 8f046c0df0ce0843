package styles

import (
	"fmt"
	"strings"
)

// Style describes a tone/persona for speech synthesis.
type Style struct {
	Key             string   // canonical catalog key
	Name            string   // display name
	Description     string   // short description shown in help
	Directive       string   // synthesis instruction text
	Aliases         []string // lower-case alias/keyword strings
	Stability       float64  // tone parameter, 0-1
	SimilarityBoost float64  // tone parameter, 0-1
	Tone            float64  // tone parameter, 0-1
}

// Catalog is the fixed style catalog, loaded at startup and never mutated.
// Declaration order is significant: alias resolution scans entries in this
// order and the first match wins, so e.g. "sports announcer" resolves to
// trailer (alias "announcer") before the sports entry is ever reached.
var Catalog = []Style{
	{
		Key:             "villain",
		Name:            "Movie Villain",
		Description:     "Menacing, slow, dramatic pauses",
		Directive:       "Speak like a menacing movie villain with dramatic pauses, slow and deliberate delivery, emphasizing key words ominously.",
		Aliases:         []string{"villain", "evil", "menacing", "bad guy", "antagonist", "vilão", "vilao", "mal", "malvado"},
		Stability:       0.25,
		SimilarityBoost: 0.7,
		Tone:            0.85,
	},
	{
		Key:             "trailer",
		Name:            "Movie Trailer",
		Description:     "Epic, dramatic narrator voice",
		Directive:       "Speak like an epic movie trailer announcer with a deep, dramatic voice. Add dramatic emphasis and building intensity.",
		Aliases:         []string{"trailer", "movie trailer", "epic", "announcer", "dramatic", "narrator", "épico", "epico", "narrador"},
		Stability:       0.4,
		SimilarityBoost: 0.75,
		Tone:            0.8,
	},
	{
		Key:             "pirate",
		Name:            "Pirate",
		Description:     "Gruff \"arrr\" sea-dog delivery",
		Directive:       "Speak like a gruff sea pirate, with \"arrr\"s and nautical expressions. Roll the R sounds and be boisterous.",
		Aliases:         []string{"pirate", "captain", "buccaneer", "sailor", "arrr", "pirata", "capitão", "capitao", "marujo"},
		Stability:       0.35,
		SimilarityBoost: 0.7,
		Tone:            0.75,
	},
	{
		Key:             "whisper",
		Name:            "Whisper/ASMR",
		Description:     "Soft, intimate whisper",
		Directive:       "Whisper softly and intimately, like an ASMR video. Very gentle and soothing.",
		Aliases:         []string{"whisper", "asmr", "soft", "quiet", "gentle", "mysterious", "sussurro", "sussurrar", "suave", "misterioso"},
		Stability:       0.8,
		SimilarityBoost: 0.9,
		Tone:            0.2,
	},
	{
		Key:             "excited",
		Name:            "Excited",
		Description:     "High energy, enthusiastic",
		Directive:       "Speak with extreme enthusiasm and excitement, like you just received amazing news!",
		Aliases:         []string{"excited", "enthusiastic", "happy", "joyful", "hyped", "pumped", "animado", "entusiasmado", "feliz", "empolgado"},
		Stability:       0.2,
		SimilarityBoost: 0.5,
		Tone:            1.0,
	},
	{
		Key:             "robot",
		Name:            "Robot",
		Description:     "Monotone, mechanical",
		Directive:       "Speak in a flat, monotone robotic voice. Very mechanical and precise.",
		Aliases:         []string{"robot", "robotic", "mechanical", "ai", "computer", "monotone", "robô", "robo", "mecânico", "mecanico"},
		Stability:       0.95,
		SimilarityBoost: 0.3,
		Tone:            0.0,
	},
	{
		Key:             "drill_sergeant",
		Name:            "Drill Sergeant",
		Description:     "Loud, commanding",
		Directive:       "Bark commands like a military drill sergeant. Loud, authoritative, and demanding.",
		Aliases:         []string{"drill sergeant", "sergeant", "military", "commander", "army", "commanding", "sargento", "militar", "comandante", "exército"},
		Stability:       0.15,
		SimilarityBoost: 0.5,
		Tone:            1.0,
	},
	{
		Key:             "nature_documentary",
		Name:            "Nature Documentary",
		Description:     "Calm, observational narrator",
		Directive:       "Speak in a calm, measured tone like a nature documentary narrator observing wildlife. Thoughtful pauses and wonder.",
		Aliases:         []string{"nature", "documentary", "david attenborough", "narrator", "calm", "observational", "natureza", "documentário", "documentario", "calmo"},
		Stability:       0.65,
		SimilarityBoost: 0.85,
		Tone:            0.4,
	},
	{
		Key:             "sports",
		Name:            "Sports Announcer",
		Description:     "Fast-paced, excited play-by-play",
		Directive:       "Deliver like an excited sports announcer calling a big play. Fast-paced, energetic, building tension!",
		Aliases:         []string{"sports", "sports announcer", "commentator", "play-by-play", "broadcaster", "esporte", "esportivo", "narrador", "futebol", "gol"},
		Stability:       0.25,
		SimilarityBoost: 0.65,
		Tone:            0.85,
	},
	{
		Key:             "grandma",
		Name:            "Sweet Grandma",
		Description:     "Sweet, slow, caring",
		Directive:       "Speak like a sweet, loving grandmother. Warm, gentle, and caring with a soft tone.",
		Aliases:         []string{"grandma", "grandmother", "granny", "nana", "sweet", "caring", "vovó", "vovo", "avó", "avo", "velhinha"},
		Stability:       0.7,
		SimilarityBoost: 0.85,
		Tone:            0.35,
	},
	{
		Key:             "sarcastic",
		Name:            "Sarcastic",
		Description:     "Dry, ironic deadpan",
		Directive:       "Deliver with heavy sarcasm and a deadpan tone. Dripping with irony.",
		Aliases:         []string{"sarcastic", "sarcasm", "ironic", "deadpan", "dry", "cynical", "sarcástico", "sarcastico", "irônico", "ironico", "debochado"},
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Tone:            0.6,
	},
	{
		Key:             "angry",
		Name:            "Angry",
		Description:     "Furious, aggressive",
		Directive:       "Speak with intense anger and frustration. Aggressive and heated.",
		Aliases:         []string{"angry", "mad", "furious", "rage", "frustrated", "pissed", "bravo", "raiva", "furioso", "irritado", "puto"},
		Stability:       0.2,
		SimilarityBoost: 0.6,
		Tone:            0.9,
	},
	{
		Key:             "bored",
		Name:            "Bored",
		Description:     "Disinterested, lazy",
		Directive:       "Speak with complete boredom and disinterest. Lazy, drawn-out, like you could not care less.",
		Aliases:         []string{"bored", "boring", "tired", "lazy", "uninterested", "sleepy", "entediado", "cansado", "preguiçoso", "preguicoso", "sono"},
		Stability:       0.9,
		SimilarityBoost: 0.8,
		Tone:            0.1,
	},
	{
		Key:             "news",
		Name:            "News Anchor",
		Description:     "Professional, authoritative",
		Directive:       "Deliver like a professional news anchor. Clear, authoritative, and measured.",
		Aliases:         []string{"news", "news anchor", "reporter", "journalist", "newsreader", "professional", "jornal", "notícia", "noticia", "repórter", "jornalista"},
		Stability:       0.65,
		SimilarityBoost: 0.8,
		Tone:            0.45,
	},
	{
		Key:             "shakespearean",
		Name:            "Shakespearean",
		Description:     "Theatrical, classical flair",
		Directive:       "Perform with theatrical Shakespearean flair. Grand, dramatic, with classical actor energy.",
		Aliases:         []string{"shakespeare", "shakespearean", "theatrical", "actor", "stage", "dramatic actor", "teatro", "teatral", "ator", "dramático", "dramatico"},
		Stability:       0.35,
		SimilarityBoost: 0.75,
		Tone:            0.8,
	},
}

var catalogByKey = func() map[string]*Style {
	m := make(map[string]*Style, len(Catalog))
	for i := range Catalog {
		m[Catalog[i].Key] = &Catalog[i]
	}
	return m
}()

// Get returns the style with the given canonical key, or nil.
func Get(key string) *Style {
	return catalogByKey[key]
}

// Keys returns every canonical key in declaration order.
func Keys() []string {
	keys := make([]string, 0, len(Catalog))
	for i := range Catalog {
		keys = append(keys, Catalog[i].Key)
	}
	return keys
}

// Help renders the user-facing list of available styles with usage examples.
func Help() string {
	var b strings.Builder
	b.WriteString("Available voice styles:\n")
	for i := range Catalog {
		b.WriteString(fmt.Sprintf("  • %s: %s\n", Catalog[i].Key, Catalog[i].Description))
	}
	b.WriteString("\nExamples:\n")
	b.WriteString("  • \"say it like a villain\"\n")
	b.WriteString("  • \"voice: pirate\"\n")
	b.WriteString("  • \"whisper this\"\n")
	b.WriteString("  • \"seja um robô\"\n")
	return b.String()
}
