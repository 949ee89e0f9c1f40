package stt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	// ErrFileUnreadable is returned when the audio path cannot be opened.
	ErrFileUnreadable = errors.New("file unreadable")
	// ErrUnsupportedAudio is returned for WAV files that are not mono PCM16.
	ErrUnsupportedAudio = errors.New("unsupported audio format")
)

// File is the read capability a session needs from the filesystem.
type File interface {
	io.ReadSeekCloser
}

// OpenFunc opens an audio file for sequential reading.
type OpenFunc func(path string) (File, error)

// OpenFile is the default OpenFunc backed by the local filesystem.
func OpenFile(path string) (File, error) {
	return os.Open(path)
}

const (
	containerWAV = "wav"
	containerRaw = "raw"
	wavPCMFormat = 1
)

// audioSource is an opened audio file positioned at its first PCM byte.
type audioSource struct {
	file      File
	pcm       io.Reader
	format    audio.Format
	container string
}

func (a *audioSource) Close() error {
	return a.file.Close()
}

// openAudio opens path and derives the stream format. RIFF/WAVE files carry
// their own sample rate; anything else is treated as raw mono PCM16 at
// fallbackRate.
func openAudio(open OpenFunc, path string, fallbackRate int) (*audioSource, error) {
	f, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileUnreadable, err)
	}

	isWAV, err := sniffWAV(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrFileUnreadable, err)
	}
	if !isWAV {
		return &audioSource{
			file:      f,
			pcm:       f,
			format:    audio.Format{NumChannels: 1, SampleRate: fallbackRate},
			container: containerRaw,
		}, nil
	}

	dec := wav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("locate wav data chunk: %w", err)
	}
	if dec.WavAudioFormat != wavPCMFormat || dec.BitDepth != 16 {
		f.Close()
		return nil, fmt.Errorf("%w: format=%d bit_depth=%d", ErrUnsupportedAudio, dec.WavAudioFormat, dec.BitDepth)
	}
	// Recognizers consume a single interleave-free channel.
	if dec.NumChans != 1 {
		f.Close()
		return nil, fmt.Errorf("%w: %d channels, mono required", ErrUnsupportedAudio, dec.NumChans)
	}
	if dec.SampleRate == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: wav header has no sample rate", ErrUnsupportedAudio)
	}
	return &audioSource{
		file:      f,
		pcm:       io.LimitReader(dec.PCMChunk, int64(dec.PCMSize)),
		format:    audio.Format{NumChannels: 1, SampleRate: int(dec.SampleRate)},
		container: containerWAV,
	}, nil
}

// sniffWAV checks for a RIFF/WAVE preamble and rewinds f.
func sniffWAV(f File) (bool, error) {
	header := make([]byte, 12)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	if n < len(header) {
		return false, nil
	}
	return bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")), nil
}
