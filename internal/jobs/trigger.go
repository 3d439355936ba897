package jobs

import "github.com/google/uuid"

// TriggerWordLength is the number of letters in a generated trigger word.
const TriggerWordLength = 5

// NewTriggerWord returns a random word of uppercase letters used to invoke
// a fine-tuned model from a prompt.
func NewTriggerWord() string {
	id := uuid.New()
	word := make([]byte, TriggerWordLength)
	for i := range word {
		word[i] = 'A' + id[i]%26
	}
	return string(word)
}
