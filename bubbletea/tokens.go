package bubbletea

import (
	"sync"

	"github.com/bunnhack/letsim"
	"github.com/tiktoken-go/tokenizer"
)

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// EstimateTokens approximates the context size of msgs with the cl100k_base
// encoding. It returns 0 when the codec is unavailable.
func EstimateTokens(msgs []letsim.Message) int {
	c, err := getCodec()
	if err != nil {
		return 0
	}
	total := 0
	for _, msg := range msgs {
		for _, text := range messageText(msg) {
			ids, _, err := c.Encode(text)
			if err != nil {
				continue
			}
			total += len(ids)
		}
	}
	return total
}

func messageText(msg letsim.Message) []string {
	switch m := msg.(type) {
	case letsim.SystemMessage:
		return []string{m.Content}
	case letsim.UserMessage:
		return []string{m.Content}
	case letsim.AssistantMessage:
		out := []string{m.Content}
		for _, c := range m.ToolCalls {
			out = append(out, c.Name, c.Arguments)
		}
		return out
	case letsim.ToolMessage:
		return []string{m.Content}
	}
	return nil
}
