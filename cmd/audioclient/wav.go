package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const pcmFormat = 1

var errNotWAV = errors.New("not a RIFF/WAVE file")

// wavFormat is the fmt chunk of a WAV file.
type wavFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// bytesPerSecond is the PCM data rate for the format.
func (f wavFormat) bytesPerSecond() int {
	return int(f.SampleRate) * int(f.Channels) * int(f.BitsPerSample) / 8
}

// readWAVHeader reads chunks up to the start of the data chunk and returns
// the format. r is left positioned at the first sample. Chunks other than
// fmt and data, such as LIST, are skipped.
func readWAVHeader(r io.Reader) (wavFormat, int64, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return wavFormat{}, 0, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return wavFormat{}, 0, errNotWAV
	}

	var (
		format  wavFormat
		haveFmt bool
		chunk   [8]byte
	)
	for {
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return wavFormat{}, 0, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return wavFormat{}, 0, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return wavFormat{}, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			format = wavFormat{
				AudioFormat:   binary.LittleEndian.Uint16(body[0:2]),
				Channels:      binary.LittleEndian.Uint16(body[2:4]),
				SampleRate:    binary.LittleEndian.Uint32(body[4:8]),
				BitsPerSample: binary.LittleEndian.Uint16(body[14:16]),
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return wavFormat{}, 0, errors.New("data chunk before fmt chunk")
			}
			return format, size, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size); err != nil {
				return wavFormat{}, 0, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}

		// Chunks are word aligned.
		if size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return wavFormat{}, 0, fmt.Errorf("skip chunk padding: %w", err)
			}
		}
	}
}
