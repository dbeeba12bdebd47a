package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WAVE format tags.
const (
	FormatPCM        uint16 = 0x0001
	FormatALaw       uint16 = 0x0006
	FormatMuLaw      uint16 = 0x0007
	FormatExtensible uint16 = 0xFFFE
)

// maxFmtChunk bounds the fmt chunk. Known layouts are 16, 18 and 40 bytes.
const maxFmtChunk = 64

// Errors for malformed WAV input.
var (
	ErrNotWAV      = errors.New("not a RIFF/WAVE file")
	ErrNoFormat    = errors.New("wav: missing fmt chunk")
	ErrNoDataChunk = errors.New("wav: missing data chunk")
	ErrFmtTooLarge = errors.New("wav: fmt chunk too large")
)

// WAVFormat describes the audio payload of a WAV container.
type WAVFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataSize      uint32
}

// ReadWAVHeader parses the RIFF header and chunks up to the start of the
// data chunk. On success r is positioned at the first sample byte.
func ReadWAVHeader(r io.Reader) (WAVFormat, error) {
	var f WAVFormat

	riff := make([]byte, 12)
	if _, err := io.ReadFull(r, riff); err != nil {
		return f, fmt.Errorf("wav: read header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return f, ErrNotWAV
	}

	haveFormat := false
	chunk := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, chunk); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if !haveFormat {
					return f, ErrNoFormat
				}
				return f, ErrNoDataChunk
			}
			return f, fmt.Errorf("wav: read chunk: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return f, fmt.Errorf("wav: fmt chunk too short (%d bytes)", size)
			}
			if size > maxFmtChunk {
				return f, fmt.Errorf("%w (%d bytes)", ErrFmtTooLarge, size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return f, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			f.AudioFormat = binary.LittleEndian.Uint16(body[0:2])
			f.Channels = binary.LittleEndian.Uint16(body[2:4])
			f.SampleRate = binary.LittleEndian.Uint32(body[4:8])
			f.BitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			// WAVE_FORMAT_EXTENSIBLE carries the real format in the sub-format GUID.
			if f.AudioFormat == FormatExtensible && size >= 26 {
				f.AudioFormat = binary.LittleEndian.Uint16(body[24:26])
			}
			haveFormat = true
			if size%2 == 1 {
				if _, err := io.CopyN(io.Discard, r, 1); err != nil {
					return f, fmt.Errorf("wav: skip pad byte: %w", err)
				}
			}
		case "data":
			if !haveFormat {
				return f, ErrNoFormat
			}
			f.DataSize = size
			return f, nil
		default:
			skip := int64(size) + int64(size%2)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return f, fmt.Errorf("wav: skip %q chunk: %w", id, err)
			}
		}
	}
}

// WAVHeader builds a canonical 44-byte PCM header for dataSize bytes of samples.
func WAVHeader(sampleRate uint32, channels, bitsPerSample uint16, dataSize uint32) []byte {
	h := make([]byte, 44)
	blockAlign := channels * bitsPerSample / 8
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataSize)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], FormatPCM)
	binary.LittleEndian.PutUint16(h[22:24], channels)
	binary.LittleEndian.PutUint32(h[24:28], sampleRate)
	binary.LittleEndian.PutUint32(h[28:32], sampleRate*uint32(blockAlign))
	binary.LittleEndian.PutUint16(h[32:34], blockAlign)
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataSize)
	return h
}
