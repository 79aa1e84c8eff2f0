// ABOUTME: Stop-word based language detection for es, en and pt
// ABOUTME: Used to pick the reply locale when the guest has not stated one

package dialogue

import (
	"strings"
)

// Supported locales
const (
	LocaleES = "es"
	LocaleEN = "en"
	LocalePT = "pt"
)

var stopWords = map[string][]string{
	LocaleES: {"hola", "quiero", "quisiera", "una", "habitación", "habitacion", "para", "por", "favor", "gracias",
		"reserva", "reservar", "noche", "noches", "tienen", "hay", "cuánto", "cuanto", "el", "la", "los", "las",
		"del", "es", "mi", "me", "llamo", "somos", "personas", "buenas", "buenos", "días", "fecha", "salida", "entrada", "y", "con"},
	LocaleEN: {"hello", "hi", "i", "would", "like", "room", "a", "the", "for", "please", "thanks", "thank", "you",
		"booking", "book", "night", "nights", "do", "have", "how", "much", "is", "my", "name", "we", "are",
		"people", "guests", "check", "date", "and", "with", "want", "available"},
	LocalePT: {"olá", "ola", "oi", "quero", "gostaria", "um", "uma", "quarto", "para", "por", "favor", "obrigado",
		"obrigada", "reserva", "reservar", "noite", "noites", "vocês", "voces", "tem", "quanto", "o", "os", "as",
		"do", "da", "meu", "nome", "somos", "pessoas", "bom", "dia", "data", "saída", "entrada", "e", "com", "não"},
}

var stopWordIndex = func() map[string]map[string]bool {
	idx := make(map[string]map[string]bool, len(stopWords))
	for locale, ws := range stopWords {
		idx[locale] = make(map[string]bool, len(ws))
		for _, w := range ws {
			idx[locale][w] = true
		}
	}
	return idx
}()

// DetectLanguage scores text against each locale's stop words.
// It returns "" when no locale wins outright.
func DetectLanguage(text string) string {
	scores := map[string]int{}
	for _, w := range words(strings.ToLower(text)) {
		for locale, set := range stopWordIndex {
			if set[w] {
				scores[locale]++
			}
		}
	}

	best, bestScore, tie := "", 0, false
	for _, locale := range []string{LocaleES, LocaleEN, LocalePT} {
		switch s := scores[locale]; {
		case s > bestScore:
			best, bestScore, tie = locale, s, false
		case s == bestScore && s > 0:
			tie = true
		}
	}
	if tie || bestScore == 0 {
		return ""
	}
	return best
}

// ValidLocale reports whether l is a supported locale
func ValidLocale(l string) bool {
	switch l {
	case LocaleES, LocaleEN, LocalePT:
		return true
	}
	return false
}
