package audio

// Decoder turns one inbound binary frame into 16 kHz mono LINEAR16 samples.
// A Decoder may keep state between frames and belongs to one connection.
type Decoder interface {
	Decode(frame []byte) ([]byte, error)
	Close()
}

type DecoderFactory func() (Decoder, error)
