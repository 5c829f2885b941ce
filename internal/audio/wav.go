// SPDX-License-Identifier: MIT

package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// EncodeWAV writes samples as a 16-bit mono PCM RIFF/WAVE stream.
func EncodeWAV(w io.Writer, samples []int16, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataSize := uint32(len(samples) * 2)
	blockAlign := uint16(channels * bitsPerSample / 8)
	byteRate := uint32(sampleRate) * uint32(blockAlign)

	var hdr bytes.Buffer
	hdr.WriteString("RIFF")
	_ = binary.Write(&hdr, binary.LittleEndian, 36+dataSize)
	hdr.WriteString("WAVE")
	hdr.WriteString("fmt ")
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(16))
	_ = binary.Write(&hdr, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&hdr, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&hdr, binary.LittleEndian, byteRate)
	_ = binary.Write(&hdr, binary.LittleEndian, blockAlign)
	_ = binary.Write(&hdr, binary.LittleEndian, uint16(bitsPerSample))
	hdr.WriteString("data")
	_ = binary.Write(&hdr, binary.LittleEndian, dataSize)

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, samples); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// Render synthesises kind and returns it as a WAV file.
func Render(kind Kind, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	var buf bytes.Buffer
	if err := EncodeWAV(&buf, Synthesize(kind, sampleRate), sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
