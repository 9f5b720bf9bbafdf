package media

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

const (
	riffHeaderSize  = 12
	chunkHeaderSize = 8
	minFmtSize      = 16
	maxFmtSize      = 64 << 10
	unknownDataSize = 0xFFFFFFFF
)

// WAVInfo describes the layout of a RIFF/WAVE stream.
type WAVInfo struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BlockAlign    uint16
	BitsPerSample uint16

	// FormatChunk is the raw body of the "fmt " chunk, copied verbatim
	// into every chunk file so non-trivial layouts survive splitting.
	FormatChunk []byte

	DataOffset int64
	DataSize   int64
}

// Frames returns the number of sample frames in the data chunk.
func (w WAVInfo) Frames() int64 {
	if w.BlockAlign == 0 {
		return 0
	}
	return w.DataSize / int64(w.BlockAlign)
}

// FramesDuration converts a frame count to a duration at the stream's sample rate.
func (w WAVInfo) FramesDuration(frames int64) time.Duration {
	if w.SampleRate == 0 {
		return 0
	}
	return time.Duration(frames * int64(time.Second) / int64(w.SampleRate))
}

// Duration returns the length of the stream.
func (w WAVInfo) Duration() time.Duration {
	return w.FramesDuration(w.Frames())
}

// ReadWAVInfo walks the RIFF chunks of r (size bytes long) and returns the
// format and data location. Chunks other than "fmt ", "ds64" and "data"
// are skipped. A data size of 0 or 0xFFFFFFFF, or one running past the end
// of the stream, is taken to extend to EOF.
func ReadWAVInfo(r io.ReaderAt, size int64) (WAVInfo, error) {
	var info WAVInfo

	hdr := make([]byte, riffHeaderSize)
	if _, err := r.ReadAt(hdr, 0); err != nil {
		return info, fmt.Errorf("%w: short header: %v", ErrInvalidWAV, err)
	}
	riff := string(hdr[0:4])
	if riff != "RIFF" && riff != "RF64" {
		return info, fmt.Errorf("%w: missing RIFF header", ErrInvalidWAV)
	}
	if string(hdr[8:12]) != "WAVE" {
		return info, fmt.Errorf("%w: missing WAVE format", ErrInvalidWAV)
	}

	var ds64Size int64 = -1
	haveFmt := false
	pos := int64(riffHeaderSize)
	ch := make([]byte, chunkHeaderSize)

	for pos+chunkHeaderSize <= size {
		if _, err := r.ReadAt(ch, pos); err != nil {
			return info, fmt.Errorf("%w: chunk header at %d: %v", ErrInvalidWAV, pos, err)
		}
		id := string(ch[0:4])
		n := int64(binary.LittleEndian.Uint32(ch[4:8]))
		body := pos + chunkHeaderSize

		switch id {
		case "fmt ":
			if n < minFmtSize {
				return info, fmt.Errorf("%w: fmt chunk too short (%d bytes)", ErrInvalidWAV, n)
			}
			if n > maxFmtSize || body+n > size {
				return info, fmt.Errorf("%w: fmt chunk of %d bytes at %d exceeds stream", ErrInvalidWAV, n, body)
			}
			buf := make([]byte, n)
			if _, err := r.ReadAt(buf, body); err != nil {
				return info, fmt.Errorf("%w: fmt chunk: %v", ErrInvalidWAV, err)
			}
			info.FormatChunk = buf
			info.AudioFormat = binary.LittleEndian.Uint16(buf[0:2])
			info.Channels = binary.LittleEndian.Uint16(buf[2:4])
			info.SampleRate = binary.LittleEndian.Uint32(buf[4:8])
			info.BlockAlign = binary.LittleEndian.Uint16(buf[12:14])
			info.BitsPerSample = binary.LittleEndian.Uint16(buf[14:16])
			haveFmt = true

		case "ds64":
			buf := make([]byte, 16)
			if _, err := r.ReadAt(buf, body); err == nil {
				ds64Size = int64(binary.LittleEndian.Uint64(buf[8:16]))
			}

		case "data":
			if !haveFmt {
				return info, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			if info.SampleRate == 0 || info.BlockAlign == 0 {
				return info, fmt.Errorf("%w: sample rate %d, block align %d", ErrInvalidWAV, info.SampleRate, info.BlockAlign)
			}
			info.DataOffset = body
			switch {
			case n == unknownDataSize && ds64Size >= 0:
				n = ds64Size
			case n == 0 || n == unknownDataSize:
				n = size - body
			}
			if body+n > size {
				n = size - body
			}
			info.DataSize = n
			return info, nil
		}

		pos = body + n + n&1
	}

	return info, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
}

// wavHeaderSize is the number of bytes writeWAVHeader emits for formatChunk.
func wavHeaderSize(formatChunk []byte) int64 {
	fmtLen := int64(len(formatChunk))
	return riffHeaderSize + chunkHeaderSize + fmtLen + fmtLen&1 + chunkHeaderSize
}

// writeWAVHeader writes a RIFF header, the given fmt body and a data chunk
// header announcing dataSize bytes of samples.
func writeWAVHeader(w io.Writer, formatChunk []byte, dataSize int64) error {
	fmtLen := int64(len(formatChunk))
	pad := fmtLen & 1
	riffSize := 4 + chunkHeaderSize + fmtLen + pad + chunkHeaderSize + dataSize
	if riffSize > math.MaxUint32 {
		return fmt.Errorf("chunk of %d bytes exceeds WAV size limit", dataSize)
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(riffSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(fmtLen))
	buf.Write(formatChunk)
	if pad == 1 {
		buf.WriteByte(0)
	}
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))

	_, err := w.Write(buf.Bytes())
	return err
}

// PCMFormatChunk builds a canonical 16-byte PCM fmt body.
func PCMFormatChunk(sampleRate, channels, bitsPerSample int) []byte {
	blockAlign := channels * bitsPerSample / 8
	b := make([]byte, minFmtSize)
	binary.LittleEndian.PutUint16(b[0:2], 1)
	binary.LittleEndian.PutUint16(b[2:4], uint16(channels))
	binary.LittleEndian.PutUint32(b[4:8], uint32(sampleRate))
	binary.LittleEndian.PutUint32(b[8:12], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(b[12:14], uint16(blockAlign))
	binary.LittleEndian.PutUint16(b[14:16], uint16(bitsPerSample))
	return b
}

// EncodeWAV wraps raw little-endian PCM bytes in a WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels, bitsPerSample int) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeWAVHeader(&buf, PCMFormatChunk(sampleRate, channels, bitsPerSample), int64(len(pcm))); err != nil {
		return nil, err
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}
