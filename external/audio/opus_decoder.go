//go:build opus

package audio

import (
	"fmt"

	"github.com/foxseedlab/multilingo/internal/audio"
	"github.com/foxseedlab/multilingo/internal/transcriber"
	"github.com/hraban/opus"
)

// 120 ms is the longest Opus frame.
const maxSamplesPerPacket = transcriber.SampleRateHertz * 120 / 1000 * transcriber.ChannelCount

type OpusDecoder struct {
	dec *opus.Decoder
	pcm []int16
}

func NewOpusDecoder() (audio.Decoder, error) {
	dec, err := opus.NewDecoder(transcriber.SampleRateHertz, transcriber.ChannelCount)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec, pcm: make([]int16, maxSamplesPerPacket)}, nil
}

func (d *OpusDecoder) Decode(frame []byte) ([]byte, error) {
	packets, err := splitPackets(frame)
	if err != nil {
		return nil, err
	}
	var out []byte
	for i, p := range packets {
		n, err := d.dec.Decode(p, d.pcm)
		if err != nil {
			return nil, fmt.Errorf("decode opus packet %d: %w", i, err)
		}
		out = appendPCM(out, d.pcm[:n*transcriber.ChannelCount])
	}
	return out, nil
}

func (d *OpusDecoder) Close() {
	d.dec = nil
}
