package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// WAVDuration reads the playable length of a PCM WAV file in seconds.
func WAVDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return 0, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, errors.New("not a wav file")
	}

	var byteRate uint32
	offset := int64(12)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			return 0, fmt.Errorf("wav data chunk not found: %w", err)
		}
		offset += 8
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			var fmtChunk [16]byte
			if size < 16 {
				return 0, errors.New("short wav fmt chunk")
			}
			if _, err := io.ReadFull(f, fmtChunk[:]); err != nil {
				return 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			byteRate = binary.LittleEndian.Uint32(fmtChunk[8:12])
			rest := int64(size) - 16 + int64(size%2)
			if _, err := f.Seek(rest, io.SeekCurrent); err != nil {
				return 0, err
			}
			offset += int64(size) + int64(size%2)
		case "data":
			if byteRate == 0 {
				return 0, nil
			}
			dataSize := int64(size)
			// Streaming writers leave the size unset; fall back to what is on disk.
			if size == 0 || size == 0xFFFFFFFF || offset+dataSize > st.Size() {
				dataSize = st.Size() - offset
			}
			return float64(dataSize) / float64(byteRate), nil
		default:
			skip := int64(size) + int64(size%2)
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return 0, err
			}
			offset += skip
		}
	}
}

// writeSilence writes a mono 16 kHz 16-bit PCM WAV of the given length.
func writeSilence(path string, seconds int) error {
	const (
		sampleRate = 16000
		channels   = 1
		bits       = 16
	)
	dataSize := uint32(seconds * sampleRate * channels * bits / 8)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := make([]byte, 44)
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+dataSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1)
	binary.LittleEndian.PutUint16(hdr[22:24], channels)
	binary.LittleEndian.PutUint32(hdr[24:28], sampleRate)
	binary.LittleEndian.PutUint32(hdr[28:32], sampleRate*channels*bits/8)
	binary.LittleEndian.PutUint16(hdr[32:34], channels*bits/8)
	binary.LittleEndian.PutUint16(hdr[34:36], bits)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)

	if _, err := f.Write(hdr); err != nil {
		return err
	}
	if _, err := f.Write(make([]byte, dataSize)); err != nil {
		return err
	}
	return f.Close()
}
