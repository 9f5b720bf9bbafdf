// Package media classifies input files, extracts audio with ffmpeg and
// splits WAV streams into fixed-duration chunks.
package media

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Kind classifies an input file.
type Kind int

const (
	KindAudio Kind = iota
	KindVideo
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(k))
	}
}

// Errors reported by media operations.
var (
	ErrNotFound   = errors.New("input file not found")
	ErrExtraction = errors.New("audio extraction failed")
	ErrInvalidWAV = errors.New("invalid WAV stream")
)

var (
	audioExts = map[string]bool{".mp3": true, ".wav": true, ".flac": true, ".m4a": true, ".ogg": true}
	videoExts = map[string]bool{".mp4": true, ".mov": true, ".avi": true, ".mkv": true}
)

// File is a probed input. It is not updated after probing.
type File struct {
	Path string
	Size int64
	Kind Kind
	// KnownExt is false when the extension is in neither set; such
	// files are passed through as audio.
	KnownExt bool
}

// Ext returns the lowercased extension including the dot.
func (f File) Ext() string {
	return strings.ToLower(filepath.Ext(f.Path))
}

// IsWAV reports whether the file carries a .wav extension.
func (f File) IsWAV() bool {
	return f.Ext() == ".wav"
}

// Probe stats path and classifies it by extension.
func Probe(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return File{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return File{}, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, path)
	}

	kind, known := Classify(path)
	return File{
		Path:     path,
		Size:     info.Size(),
		Kind:     kind,
		KnownExt: known,
	}, nil
}

// Classify reports the kind implied by the extension of path, and whether
// the extension is one of the supported ones.
func Classify(path string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case videoExts[ext]:
		return KindVideo, true
	case audioExts[ext]:
		return KindAudio, true
	default:
		return KindAudio, false
	}
}
