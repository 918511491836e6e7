package prompt

// Reaction emoji used by the interactive prompts.
const (
	EmojiConfirm = "✅"
	EmojiCancel  = "❌"
	EmojiSkip    = "⏩"
)

// Alphabet is the ordered set of regional-indicator letters used to label
// selectable options. Its length bounds how many options one menu can carry.
var Alphabet = []string{
	"\U0001F1E6", "\U0001F1E7", "\U0001F1E8", "\U0001F1E9", "\U0001F1EA",
	"\U0001F1EB", "\U0001F1EC", "\U0001F1ED", "\U0001F1EE", "\U0001F1EF",
	"\U0001F1F0", "\U0001F1F1", "\U0001F1F2", "\U0001F1F3", "\U0001F1F4",
	"\U0001F1F5", "\U0001F1F6", "\U0001F1F7", "\U0001F1F8", "\U0001F1F9",
	"\U0001F1FA", "\U0001F1FB", "\U0001F1FC", "\U0001F1FD", "\U0001F1FE",
	"\U0001F1FF",
}

// AlphabetIndex returns the position of a regional-indicator emoji in the
// alphabet, or -1 when the emoji is not part of it.
func AlphabetIndex(emoji string) int {
	for i, letter := range Alphabet {
		if letter == emoji {
			return i
		}
	}
	return -1
}
