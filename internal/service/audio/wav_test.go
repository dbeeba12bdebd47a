package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestReadWAVHeader_Canonical(t *testing.T) {
	samples := []byte{1, 2, 3, 4, 5, 6}
	data := append(WAVHeader(16000, 1, 16, uint32(len(samples))), samples...)
	r := bytes.NewReader(data)

	f, err := ReadWAVHeader(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.AudioFormat != FormatPCM {
		t.Errorf("expected PCM, got %d", f.AudioFormat)
	}
	if f.SampleRate != 16000 {
		t.Errorf("expected 16000 Hz, got %d", f.SampleRate)
	}
	if f.Channels != 1 || f.BitsPerSample != 16 {
		t.Errorf("expected mono 16-bit, got channels=%d bits=%d", f.Channels, f.BitsPerSample)
	}
	if f.DataSize != uint32(len(samples)) {
		t.Errorf("expected data size %d, got %d", len(samples), f.DataSize)
	}

	rest, _ := io.ReadAll(r)
	if !bytes.Equal(rest, samples) {
		t.Errorf("expected reader positioned at samples, got %v", rest)
	}
}

func TestReadWAVHeader_SkipsUnknownChunks(t *testing.T) {
	canonical := WAVHeader(8000, 1, 16, 2)

	var buf bytes.Buffer
	buf.Write(canonical[0:12])
	// odd-sized LIST chunk with pad byte
	buf.WriteString("LIST")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0})
	buf.Write(canonical[12:44])
	buf.Write([]byte{9, 9})

	f, err := ReadWAVHeader(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.SampleRate != 8000 {
		t.Errorf("expected 8000 Hz, got %d", f.SampleRate)
	}
	if buf.Len() != 2 {
		t.Errorf("expected 2 sample bytes left, got %d", buf.Len())
	}
}

func TestReadWAVHeader_Errors(t *testing.T) {
	canonical := WAVHeader(8000, 1, 16, 0)
	oversized := append([]byte(nil), canonical[0:36]...)
	binary.LittleEndian.PutUint32(oversized[16:20], 0xF0000000)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"not riff", []byte("OggS0000WAVEfmt "), ErrNotWAV},
		{"header only", canonical[0:12], ErrNoFormat},
		{"no data chunk", canonical[0:36], ErrNoDataChunk},
		{"oversized fmt chunk", oversized, ErrFmtTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadWAVHeader(bytes.NewReader(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestReadWAVHeader_Truncated(t *testing.T) {
	_, err := ReadWAVHeader(bytes.NewReader([]byte("RIFF")))
	if err == nil {
		t.Fatal("expected error for truncated header")
	}
}
