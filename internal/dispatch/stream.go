package dispatch

import (
	"context"
	"unicode"

	"github.com/innovatehubph/inno-ai-gateway/internal/provider"
)

// SynthesizeStream replays a complete response as word-sized chunks.
// Each segment keeps its trailing whitespace so concatenating every
// delta reproduces the original text byte for byte.
func SynthesizeStream(ctx context.Context, text string) <-chan *provider.Chunk {
	ch := make(chan *provider.Chunk)

	go func() {
		defer close(ch)
		for _, segment := range splitSegments(text) {
			select {
			case ch <- &provider.Chunk{Delta: segment}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- &provider.Chunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return ch
}

// splitSegments cuts text into word+trailing-whitespace runs. Leading
// whitespace becomes its own segment.
func splitSegments(text string) []string {
	if text == "" {
		return nil
	}

	var segments []string
	runes := []rune(text)
	start := 0
	inSpace := unicode.IsSpace(runes[0])

	for i := 1; i < len(runes); i++ {
		isSpace := unicode.IsSpace(runes[i])
		// A segment ends where whitespace turns back into a word.
		if inSpace && !isSpace && start < i {
			segments = append(segments, string(runes[start:i]))
			start = i
		}
		inSpace = isSpace
	}
	segments = append(segments, string(runes[start:]))

	return segments
}
