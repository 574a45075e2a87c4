package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrTruncatedPacket = errors.New("truncated opus packet")

// splitPackets splits a frame of big-endian uint16 length-prefixed packets.
func splitPackets(frame []byte) ([][]byte, error) {
	var packets [][]byte
	for off := 0; off < len(frame); {
		if len(frame)-off < 2 {
			return nil, fmt.Errorf("%w: dangling length byte at offset %d", ErrTruncatedPacket, off)
		}
		n := int(binary.BigEndian.Uint16(frame[off:]))
		off += 2
		if n == 0 {
			continue
		}
		if len(frame)-off < n {
			return nil, fmt.Errorf("%w: want %d bytes at offset %d, have %d", ErrTruncatedPacket, n, off, len(frame)-off)
		}
		packets = append(packets, frame[off:off+n])
		off += n
	}
	return packets, nil
}

func appendPCM(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}
