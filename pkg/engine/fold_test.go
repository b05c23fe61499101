package engine

import (
	"testing"

	"github.com/go-go-golems/quill/pkg/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldAccumulatesIntoOneMessage(t *testing.T) {
	prior := []conversation.Message{conversation.NewUserMessage("greet me")}

	msgs, completion := prior, ""
	for _, chunk := range []string{"Hel", "lo, ", "world"} {
		msgs, completion = Fold(msgs, completion, chunk)
	}

	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.NewAssistantMessage("Hello, world"), msgs[1])
	assert.Equal(t, "Hello, world", completion)
	// prior is untouched
	assert.Len(t, prior, 1)
}

func TestFoldFirstChunkAppends(t *testing.T) {
	prior := []conversation.Message{
		conversation.NewUserMessage("a"),
		conversation.NewAssistantMessage("earlier reply"),
	}
	msgs, completion := Fold(prior, "", "new")
	require.Len(t, msgs, 3)
	assert.Equal(t, "earlier reply", msgs[1].Content)
	assert.Equal(t, conversation.NewAssistantMessage("new"), msgs[2])
	assert.Equal(t, "new", completion)

	msgs, _ = Fold(nil, "", "x")
	assert.Equal(t, []conversation.Message{conversation.NewAssistantMessage("x")}, msgs)
}

func TestFoldDoesNotAliasPrior(t *testing.T) {
	prior := []conversation.Message{
		conversation.NewUserMessage("a"),
		conversation.NewAssistantMessage("Hel"),
	}
	msgs, _ := Fold(prior, "Hel", "lo")
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.Equal(t, "Hel", prior[1].Content)
}
