package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	tokenRiff       = [4]byte{'R', 'I', 'F', 'F'}
	tokenWaveFormat = [4]byte{'W', 'A', 'V', 'E'}
	tokenChunkFmt   = [4]byte{'f', 'm', 't', ' '}
	tokenData       = [4]byte{'d', 'a', 't', 'a'}
)

// ErrUnsupportedWAV is returned for anything but mono 8/16-bit PCM.
var ErrUnsupportedWAV = errors.New("unsupported wav format")

// WAVInfo describes a parsed file.
type WAVInfo struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
	Samples       int
}

type riffHeader struct {
	Ftype       [4]byte
	ChunkSize   uint32
	ChunkFormat [4]byte
}

type chunkHeader struct {
	ID   [4]byte
	Size uint32
}

type riffChunkFmt struct {
	AudioFormat   uint16 // 1 = PCM not compressed
	NumChannels   uint16
	SampleRate    uint32
	BytesPerSec   uint32
	BytesPerBloc  uint16
	BitsPerSample uint16
}

// ReadWAV parses a mono PCM WAV stream and returns its samples as signed
// 8-bit values. 8-bit files (unsigned on disk) are re-centred; 16-bit files
// keep their high byte.
func ReadWAV(r io.Reader) (*WAVInfo, []int8, error) {
	var hdr riffHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, nil, fmt.Errorf("read riff header: %w", err)
	}
	if hdr.Ftype != tokenRiff || hdr.ChunkFormat != tokenWaveFormat {
		return nil, nil, fmt.Errorf("%w: not a RIFF/WAVE stream", ErrUnsupportedWAV)
	}

	var info *WAVInfo
	for {
		var ch chunkHeader
		if err := binary.Read(r, binary.LittleEndian, &ch); err != nil {
			return nil, nil, fmt.Errorf("read chunk header: %w", err)
		}
		switch ch.ID {
		case tokenChunkFmt:
			var f riffChunkFmt
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return nil, nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			if rest := int64(ch.Size) - 16; rest > 0 {
				if _, err := io.CopyN(io.Discard, r, rest); err != nil {
					return nil, nil, fmt.Errorf("skip fmt extension: %w", err)
				}
			}
			if f.AudioFormat != 1 || f.NumChannels != 1 || (f.BitsPerSample != 8 && f.BitsPerSample != 16) {
				return nil, nil, fmt.Errorf("%w: format=%d channels=%d bits=%d", ErrUnsupportedWAV, f.AudioFormat, f.NumChannels, f.BitsPerSample)
			}
			info = &WAVInfo{SampleRate: f.SampleRate, Channels: f.NumChannels, BitsPerSample: f.BitsPerSample}
		case tokenData:
			if info == nil {
				return nil, nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrUnsupportedWAV)
			}
			raw := make([]byte, ch.Size)
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, nil, fmt.Errorf("read data chunk: %w", err)
			}
			samples := pcmToInt8(raw, info.BitsPerSample)
			info.Samples = len(samples)
			return info, samples, nil
		default:
			skip := int64(ch.Size) + int64(ch.Size&1)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, nil, fmt.Errorf("skip chunk %q: %w", ch.ID[:], err)
			}
		}
	}
}

func pcmToInt8(raw []byte, bits uint16) []int8 {
	if bits == 8 {
		out := make([]int8, len(raw))
		for i, b := range raw {
			out[i] = int8(int(b) - 128)
		}
		return out
	}
	out := make([]int8, len(raw)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		out[i] = int8(s >> 8)
	}
	return out
}

// BuildWAV8 wraps signed 8-bit samples into an unsigned 8-bit mono RIFF/WAVE
// file and returns the bytes (header + data).
func BuildWAV8(samples []int8, sampleRate int) []byte {
	dataLen := uint32(len(samples))
	buf := &bytes.Buffer{}
	buf.Grow(44 + len(samples))
	_ = binary.Write(buf, binary.LittleEndian, riffHeader{
		Ftype:       tokenRiff,
		ChunkSize:   4 + (8 + 16) + (8 + dataLen),
		ChunkFormat: tokenWaveFormat,
	})
	_ = binary.Write(buf, binary.LittleEndian, chunkHeader{ID: tokenChunkFmt, Size: 16})
	_ = binary.Write(buf, binary.LittleEndian, riffChunkFmt{
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		BytesPerSec:   uint32(sampleRate),
		BytesPerBloc:  1,
		BitsPerSample: 8,
	})
	_ = binary.Write(buf, binary.LittleEndian, chunkHeader{ID: tokenData, Size: dataLen})
	for _, s := range samples {
		buf.WriteByte(byte(int(s) + 128))
	}
	return buf.Bytes()
}
