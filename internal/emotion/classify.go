// Package emotion derives a discrete affect tag from model output text
// to drive the avatar indicator.
package emotion

import "strings"

// Emotion is the affect tag shown on the avatar.
type Emotion string

const (
	Neutral   Emotion = "neutral"
	Happy     Emotion = "happy"
	Cheeky    Emotion = "cheeky"
	Angry     Emotion = "angry"
	Smirking  Emotion = "smirking"
	Seductive Emotion = "seductive"
)

type rule struct {
	emotion Emotion
	markers []string
}

// Affect categories overlap at the lexical level (a reply can carry
// both a happy emoji and an angry word), so the first matching rule
// wins instead of any scoring. Order matters.
var rules = []rule{
	{Seductive, []string{
		"darling", "honey", "babe", "come here", "close", "touch", "kiss",
		"lips", "bed", "naughty", "desire", "want you", "hot", "sexy",
		"😘", "💋", "🔥", "😻", "🥵",
	}},
	{Smirking, []string{
		"😈", "👿", "😼", "evil", "wicked", "dark", "plot", "smirk",
		"bad girl", "trouble", "chaos",
	}},
	{Angry, []string{
		"😠", "😡", "🤬", "😤", "angry", "mad", "furious", "annoying",
		"stupid", "idiot", "hate", "grr",
	}},
	{Happy, []string{
		"😊", "😁", "😄", "😃", "😂", "🤣", "😉", "😍", "🥰", "😘", "😋", "😎",
		":)", ":-)", ":d", "lol", "haha", "hehe", "love", "fun", "happy",
		"good", "great", "excellent", "amazing", "sweet", "banana",
	}},
	{Cheeky, []string{"😏", "tease", "secret", "maybe", "hmmm", "wink"}},
}

// Classify maps text to an affect tag by case-insensitive substring
// match against the rule table, top-down.
func Classify(text string) Emotion {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, marker := range r.markers {
			if strings.Contains(lower, marker) {
				return r.emotion
			}
		}
	}
	return Neutral
}
