package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"runtime"
	"testing"
	"time"
)

func TestReadWAVInfo_Canonical(t *testing.T) {
	data, err := EncodeWAV(make([]byte, 16000*2), 16000, 1, 16)
	if err != nil {
		t.Fatal(err)
	}

	info, err := ReadWAVInfo(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Errorf("unexpected format: %+v", info)
	}
	if info.DataOffset != 44 {
		t.Errorf("expected data offset 44, got %d", info.DataOffset)
	}
	if info.Frames() != 16000 {
		t.Errorf("expected 16000 frames, got %d", info.Frames())
	}
	if info.Duration() != time.Second {
		t.Errorf("expected 1s, got %v", info.Duration())
	}
}

func TestReadWAVInfo_SkipsListChunk(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVE")
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(5)) // odd size, padded
	buf.Write([]byte{'I', 'N', 'F', 'O', 'x', 0})
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	buf.Write(PCMFormatChunk(8000, 2, 16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(0xFFFFFFFF)) // streamed output
	buf.Write(make([]byte, 8000*4))

	info, err := ReadWAVInfo(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Channels != 2 || info.BlockAlign != 4 {
		t.Errorf("unexpected format: %+v", info)
	}
	if info.DataSize != 8000*4 {
		t.Errorf("expected data to extend to EOF (32000 bytes), got %d", info.DataSize)
	}
	if info.Frames() != 8000 {
		t.Errorf("expected 8000 frames, got %d", info.Frames())
	}
}

func TestReadWAVInfo_Invalid(t *testing.T) {
	noData := func() []byte {
		var buf bytes.Buffer
		buf.WriteString("RIFF")
		binary.Write(&buf, binary.LittleEndian, uint32(28))
		buf.WriteString("WAVE")
		buf.WriteString("fmt ")
		binary.Write(&buf, binary.LittleEndian, uint32(16))
		buf.Write(PCMFormatChunk(8000, 1, 16))
		return buf.Bytes()
	}

	fmtSize := func(n uint32) []byte {
		var buf bytes.Buffer
		buf.WriteString("RIFF")
		binary.Write(&buf, binary.LittleEndian, uint32(40))
		buf.WriteString("WAVE")
		buf.WriteString("fmt ")
		binary.Write(&buf, binary.LittleEndian, n)
		buf.Write(PCMFormatChunk(8000, 1, 16))
		buf.WriteString("data")
		binary.Write(&buf, binary.LittleEndian, uint32(0))
		return buf.Bytes()
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"fmt larger than stream", fmtSize(0xF0000000)},
		{"fmt past end", fmtSize(64)},
		{"not riff", []byte("RIFX\x00\x00\x00\x00WAVEfmt ")},
		{"not wave", []byte("RIFF\x00\x00\x00\x00AVI fmt ")},
		{"no data chunk", noData()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadWAVInfo(bytes.NewReader(tt.data), int64(len(tt.data)))
			if !errors.Is(err, ErrInvalidWAV) {
				t.Errorf("expected ErrInvalidWAV, got %v", err)
			}
		})
	}
}

func TestReadWAVInfo_OversizedFmtDoesNotAllocate(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(40))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(0xF0000000))
	buf.Write(PCMFormatChunk(8000, 1, 16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	data := buf.Bytes()

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	_, err := ReadWAVInfo(bytes.NewReader(data), int64(len(data)))
	runtime.ReadMemStats(&after)

	if !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("expected ErrInvalidWAV, got %v", err)
	}
	if delta := after.TotalAlloc - before.TotalAlloc; delta > 1<<20 {
		t.Errorf("expected bounded allocation, got %d bytes", delta)
	}
}

func TestWriteWAVHeader_RoundTrip(t *testing.T) {
	format := PCMFormatChunk(44100, 2, 24)
	var buf bytes.Buffer
	if err := writeWAVHeader(&buf, format, 600); err != nil {
		t.Fatal(err)
	}
	buf.Write(make([]byte, 600))

	info, err := ReadWAVInfo(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.BlockAlign != 6 || info.BitsPerSample != 24 || info.SampleRate != 44100 {
		t.Errorf("unexpected format: %+v", info)
	}
	if info.Frames() != 100 {
		t.Errorf("expected 100 frames, got %d", info.Frames())
	}
}
