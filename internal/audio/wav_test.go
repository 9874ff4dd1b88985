package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	t.Run("rejects empty samples", func(t *testing.T) {
		if _, err := EncodeWAV(nil, 16000); err == nil {
			t.Error("Expected error for empty samples")
		}
	})

	t.Run("rejects zero sample rate", func(t *testing.T) {
		if _, err := EncodeWAV([]int16{1, 2, 3}, 0); err == nil {
			t.Error("Expected error for zero sample rate")
		}
	})

	t.Run("writes canonical header", func(t *testing.T) {
		samples := []int16{100, -100, 200, -200}
		data, err := EncodeWAV(samples, 16000)
		if err != nil {
			t.Fatalf("EncodeWAV failed: %v", err)
		}

		if len(data) != 44+len(samples)*2 {
			t.Errorf("Expected %d bytes, got %d", 44+len(samples)*2, len(data))
		}

		if !bytes.Equal(data[0:4], []byte("RIFF")) {
			t.Error("Missing RIFF marker")
		}

		if !bytes.Equal(data[8:12], []byte("WAVE")) {
			t.Error("Missing WAVE marker")
		}

		sampleRate := binary.LittleEndian.Uint32(data[24:28])
		if sampleRate != 16000 {
			t.Errorf("Expected sample rate 16000 in header, got %d", sampleRate)
		}

		dataSize := binary.LittleEndian.Uint32(data[40:44])
		if dataSize != uint32(len(samples)*2) {
			t.Errorf("Expected data size %d, got %d", len(samples)*2, dataSize)
		}
	})
}

func TestDecodeWAV(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}

	encoded, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, rate, err := DecodeWAV(encoded)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}

	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}

	for i, want := range samples {
		if decoded[i] != want {
			t.Errorf("Sample %d: expected %d, got %d", i, want, decoded[i])
		}
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	valid, err := EncodeWAV([]int16{1, 2, 3, 4}, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	corrupt := func(offset int, b []byte) []byte {
		data := make([]byte, len(valid))
		copy(data, valid)
		copy(data[offset:], b)
		return data
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated header", valid[:20]},
		{"bad RIFF marker", corrupt(0, []byte("RIFX"))},
		{"bad WAVE marker", corrupt(8, []byte("AIFF"))},
		{"bad fmt chunk", corrupt(12, []byte("junk"))},
		{"bad data chunk", corrupt(36, []byte("LIST"))},
		{"float format", corrupt(20, []byte{3, 0})},
		{"8-bit depth", corrupt(34, []byte{8, 0})},
		{"stereo", corrupt(22, []byte{2, 0})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeWAV(tt.data); err == nil {
				t.Error("Expected decode error but got none")
			}
		})
	}
}
