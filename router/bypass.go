package router

import "strings"

// switchCommands are explicit prefixes that always re-route.
var switchCommands = []string{
	"/switch",
	"/triad",
	"/route",
}

// transitionPhrases signal the user is deliberately changing direction.
var transitionPhrases = []string{
	"let's switch to",
	"lets switch to",
	"now let's",
	"now lets",
	"switch to the",
	"moving on to",
	"next, let's",
}

// multiIntentConnectors suggest the prompt carries more than one task.
var multiIntentConnectors = []string{
	" and then ",
	" then ",
}

// BypassesGrace reports whether a prompt should re-route even inside
// the grace period.
func BypassesGrace(prompt string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(prompt))
	for _, cmd := range switchCommands {
		if strings.HasPrefix(trimmed, cmd) {
			return true
		}
	}
	for _, phrase := range transitionPhrases {
		if strings.Contains(trimmed, phrase) {
			return true
		}
	}
	for _, conn := range multiIntentConnectors {
		if strings.Contains(trimmed, conn) {
			return true
		}
	}
	return false
}
