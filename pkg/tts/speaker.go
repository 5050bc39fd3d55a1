package tts

import "context"

// Speaker adapts a Provider to callers that want raw audio bytes and a
// container name.
type Speaker struct {
	Provider Provider
}

// Synthesize returns the audio for text and its container ("mp3", "pcm").
func (s Speaker) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if s.Provider == nil {
		return nil, "", ErrProviderUnavailable
	}
	res, err := s.Provider.Synthesize(ctx, text)
	if err != nil {
		return nil, "", err
	}
	return res.Audio, res.Format.Encoding.Container(), nil
}
