package escalation

import "strings"

// spanishMarkers are common Spanish function words and phrasing that rarely
// appear in English messages.
var spanishMarkers = []string{
	" el ", " la ", " los ", " las ", " una ", " uno ", " que ", " por ",
	" para ", " con ", " quiero ", " necesito ", " gracias", "hola",
	" pedido", " cuánto", " cuanto", " dónde", " donde", " envío", " envio",
	"¿", "¡", " sí ", " no hay ",
}

// DetectLanguage guesses the customer's language from message text.
// Returns "es" or "en"; defaults to "en" when the signal is weak.
func DetectLanguage(text string) string {
	padded := " " + strings.ToLower(text) + " "
	hits := 0
	for _, m := range spanishMarkers {
		if strings.Contains(padded, m) {
			hits++
		}
	}
	if hits >= 2 {
		return "es"
	}
	return "en"
}

// transferredReplies are the fixed transferred-to-human messages sent while
// a conversation is escalated, keyed by language.
var transferredReplies = map[string]string{
	"en": "You've been transferred to a member of our team. Someone will be with you shortly.",
	"es": "Te hemos transferido con un miembro de nuestro equipo. En breve te atenderán.",
}

// TransferredReply returns the canned handoff message for the language.
func TransferredReply(lang string) string {
	if reply, ok := transferredReplies[lang]; ok {
		return reply
	}
	return transferredReplies["en"]
}

// fallbackReplies are canned replies used when the agent loop fails and no
// model-generated text is available.
var fallbackReplies = map[string]string{
	"en": "Sorry, something went wrong on our side. Could you say that again?",
	"es": "Disculpa, tuvimos un problema de nuestro lado. ¿Podrías repetirlo?",
}

// FallbackReply returns the canned internal-failure message for the language.
func FallbackReply(lang string) string {
	if reply, ok := fallbackReplies[lang]; ok {
		return reply
	}
	return fallbackReplies["en"]
}
