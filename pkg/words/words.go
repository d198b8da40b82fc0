// Package words holds the messages exchanged between the front end and the
// transform worker, and their wire encoding.
package words

import (
	"strings"
)

// Default topics, shared by both sides of the bridge.
const (
	DefaultPublishTopic = "mqlight/sample/words"
	DefaultReplyTopic   = "mqlight/sample/wordsuppercase"
)

// WorkUnit is one word submitted for transformation.
type WorkUnit struct {
	Text   string `json:"word"`
	Origin string `json:"frontend"`
}

// ReplyPayload is the transformed word sent back to the front end.
type ReplyPayload struct {
	Text   string `json:"word"`
	Origin string `json:"backend"`
}

// Split breaks text on single spaces. Consecutive spaces yield empty tokens.
func Split(text string) []string {
	return strings.Split(text, " ")
}

// Units builds one WorkUnit per token of text, in order.
func Units(text, origin string) []WorkUnit {
	tokens := Split(text)
	units := make([]WorkUnit, len(tokens))
	for i, tok := range tokens {
		units[i] = WorkUnit{Text: tok, Origin: origin}
	}
	return units
}

// Uppercase is the default transform.
func Uppercase(s string) string {
	return strings.ToUpper(s)
}
