package sources

import (
	"strings"
)

// Language constants
const (
	LangEnglish    = "en"
	LangSpanish    = "es"
	LangPortuguese = "pt"
	LangFrench     = "fr"
)

// languageIndicators holds common words that are unlikely in the other supported languages.
// Each word is padded with spaces so substring matches only hit whole words.
var languageIndicators = map[string][]string{
	LangEnglish: {
		" the ", " and ", " with ", " our ", " your ", " we ", " you ",
		" for ", " that ", " this ", " from ", " have ", " are ", " will ",
		" can ", " help ", " business ", " looking ", " need ", " how ",
	},
	LangSpanish: {
		" que ", " para ", " con ", " una ", " los ", " las ", " del ",
		" necesito ", " busco ", " ayuda ", " empresa ", " negocio ", " cómo ",
		" pero ", " también ", " muy ", " hay ", " estoy ",
	},
	LangPortuguese: {
		" que ", " para ", " com ", " uma ", " seu ", " sua ", " nós ",
		" você ", " empresa ", " negócio ", " preciso ", " ajuda ", " não ",
		" então ", " também ", " muito ", " estou ", " pelo ",
	},
	LangFrench: {
		" le ", " les ", " des ", " une ", " est ", " pour ", " avec ",
		" dans ", " je ", " nous ", " vous ", " besoin ", " entreprise ",
		" aide ", " mais ", " aussi ", " très ", " cherche ",
	},
}

// languageRunes are characters that point at one language
var languageRunes = map[rune]string{
	'ñ': LangSpanish, '¿': LangSpanish, '¡': LangSpanish,
	'ã': LangPortuguese, 'õ': LangPortuguese,
	'è': LangFrench, 'ù': LangFrench, 'û': LangFrench, 'ë': LangFrench, 'ï': LangFrench, 'œ': LangFrench,
}

// languageOrder breaks ties deterministically
var languageOrder = []string{LangEnglish, LangSpanish, LangPortuguese, LangFrench}

// DetectLanguage guesses the language of text among en, es, pt and fr.
// Returns fallback when the text carries no usable signal.
func DetectLanguage(text, fallback string) string {
	content := " " + strings.ToLower(cleanText(stripPunctuation(text))) + " "
	if strings.TrimSpace(content) == "" {
		return fallback
	}

	scores := map[string]int{}
	for lang, words := range languageIndicators {
		for _, word := range words {
			if strings.Contains(content, word) {
				scores[lang]++
			}
		}
	}
	for _, r := range strings.ToLower(text) {
		if lang, ok := languageRunes[r]; ok {
			scores[lang]++
		}
	}

	best, bestScore := "", 0
	for _, lang := range languageOrder {
		if scores[lang] > bestScore {
			best, bestScore = lang, scores[lang]
		}
	}

	// A single hit is noise ("que" appears in English slang, "le" in names)
	if bestScore < 2 {
		return fallback
	}
	return best
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?', ';', ':', '(', ')', '"', '\'', '¿', '¡':
			return ' '
		}
		return r
	}, s)
}
