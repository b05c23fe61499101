package engine

import "github.com/go-go-golems/quill/pkg/conversation"

// Fold integrates one streamed chunk into a transcript. completion is the
// text accumulated by the generation so far, empty before the first chunk.
//
// The first chunk appends a new assistant message. Every later chunk
// replaces the content of that last message with the cumulative text, so
// the transcript always holds the full response received so far. The prior
// slice is not modified.
func Fold(prior []conversation.Message, completion string, chunk string) ([]conversation.Message, string) {
	first := completion == "" || len(prior) == 0
	completion += chunk
	ret := make([]conversation.Message, len(prior), len(prior)+1)
	copy(ret, prior)
	if first {
		return append(ret, conversation.NewAssistantMessage(completion)), completion
	}
	ret[len(ret)-1].Content = completion
	return ret, completion
}
