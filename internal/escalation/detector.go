// Package escalation decides when a conversation must be handed off to a
// human. Detection is a pure function over the message, recent history and
// the prior failure count; it is advisory, and the agent's own
// escalate_to_human tool call is an equally valid trigger.
package escalation

import "strings"

// Reasons reported on escalation.
const (
	ReasonRepeatedFailures = "repeated processing failures"
	ReasonHumanRequested   = "customer asked for a human"
	ReasonUrgent           = "urgent request"
	ReasonFrustration      = "customer frustration"
)

// Result is the outcome of a detection pass.
type Result struct {
	ShouldEscalate bool
	Reason         string
}

// humanRequestPhrases are explicit handoff requests, English and Spanish.
var humanRequestPhrases = []string{
	"talk to a human", "speak to a human", "real person", "talk to someone",
	"talk to a manager", "speak to the manager", "customer service",
	"human agent", "speak with a person",
	"hablar con una persona", "hablar con alguien", "hablar con un humano",
	"hablar con el encargado", "hablar con un encargado", "con el gerente",
	"atencion al cliente", "atención al cliente", "una persona real",
}

// urgencyKeywords signal time-critical requests.
var urgencyKeywords = []string{
	"urgent", "emergency", "right now", "immediately", "asap",
	"urgente", "emergencia", "ahora mismo", "inmediatamente", "ya mismo",
}

// frustrationKeywords feed the weighted frustration score.
var frustrationKeywords = []string{
	"terrible", "awful", "useless", "ridiculous", "worst", "horrible",
	"angry", "frustrated", "annoyed", "stupid", "waste of time",
	"pesimo", "pésimo", "inutil", "inútil", "ridiculo", "ridículo",
	"molesto", "enojado", "harto", "una porqueria", "una porquería",
}

// frustrationThreshold is the weighted score at which we escalate.
const frustrationThreshold = 2.0

// maxPriorFailures forces a handoff after this many consecutive failures.
const maxPriorFailures = 3

// Detect scores a message plus recent customer history for escalation.
// Checks run in order, first match wins:
//  1. prior failure count
//  2. explicit human-request phrase
//  3. urgency keyword
//  4. weighted frustration score
//
// history carries the customer's previous messages, newest first; only the
// last three contribute to the frustration score.
func Detect(message string, history []string, priorFailures int) Result {
	if priorFailures >= maxPriorFailures {
		return Result{ShouldEscalate: true, Reason: ReasonRepeatedFailures}
	}

	lower := strings.ToLower(message)

	for _, phrase := range humanRequestPhrases {
		if strings.Contains(lower, phrase) {
			return Result{ShouldEscalate: true, Reason: ReasonHumanRequested}
		}
	}

	for _, kw := range urgencyKeywords {
		if strings.Contains(lower, kw) {
			return Result{ShouldEscalate: true, Reason: ReasonUrgent}
		}
	}

	if frustrationScore(message, history) >= frustrationThreshold {
		return Result{ShouldEscalate: true, Reason: ReasonFrustration}
	}

	return Result{}
}

// frustrationScore computes the weighted score:
// +1 per frustration keyword in the message, +0.5 per keyword found in each
// of the last 3 customer messages, +0.5 for ≥3 exclamation marks, +1 for a
// long all-caps message.
func frustrationScore(message string, history []string) float64 {
	var score float64

	lower := strings.ToLower(message)
	for _, kw := range frustrationKeywords {
		if strings.Contains(lower, kw) {
			score++
		}
	}

	recent := history
	if len(recent) > 3 {
		recent = recent[:3]
	}
	for _, prev := range recent {
		prevLower := strings.ToLower(prev)
		for _, kw := range frustrationKeywords {
			if strings.Contains(prevLower, kw) {
				score += 0.5
			}
		}
	}

	if strings.Count(message, "!") >= 3 {
		score += 0.5
	}

	if isShouting(message) {
		score++
	}

	return score
}

// isShouting reports whether the message is long and entirely upper-case.
func isShouting(message string) bool {
	letters := 0
	for _, r := range message {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if (r >= 'A' && r <= 'Z') || r == 'Á' || r == 'É' || r == 'Í' || r == 'Ó' || r == 'Ú' || r == 'Ñ' {
			letters++
		}
	}
	return letters >= 10
}
