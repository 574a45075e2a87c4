package transcriber

import "context"

// UnknownLanguage is reported when no language could be determined.
const UnknownLanguage = "unknown"

const (
	SampleRateHertz = 16000
	ChannelCount    = 1
	bytesPerSample  = 2
)

type Result struct {
	Text       string
	Language   string
	Confidence *float32
}

// Transcriber turns 16 kHz mono LINEAR16 samples into text. A non-empty
// hint forces recognition in that language.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []byte, hint string) (Result, error)
}

// DurationMs is the playback length of 16 kHz mono LINEAR16 samples.
func DurationMs(samples []byte) int64 {
	return int64(len(samples)/bytesPerSample) * 1000 / SampleRateHertz
}
