package audio

import (
	"bytes"
	"testing"
)

func TestWAVBytesEmptyIsWellFormed(t *testing.T) {
	data, err := WAVBytes(nil, CaptureFormat)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != WAVHeaderSize {
		t.Fatalf("expected %d byte header, got %d", WAVHeaderSize, len(data))
	}
	if !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		t.Fatalf("missing RIFF/WAVE markers: %q", data[:12])
	}
}

func TestWAVBytesDecodesBack(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}
	data, err := WAVBytes(samples, CaptureFormat)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != WAVHeaderSize+len(samples)*2 {
		t.Fatalf("unexpected wav size %d", len(data))
	}
	decoded, format, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if format != CaptureFormat {
		t.Fatalf("unexpected format %+v", format)
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Fatalf("sample %d: want %d got %d", i, samples[i], decoded[i])
		}
	}
}

func TestNormalizeDownmixesAndResamples(t *testing.T) {
	// one second of 48kHz stereo silence with a constant left channel
	stereo := make([]int16, 48000*2)
	for i := 0; i < len(stereo); i += 2 {
		stereo[i] = 200
	}
	mono, err := Normalize(SamplesToBytes(stereo), Format{SampleRate: 48000, Channels: 2}, 16000)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(mono) != 16000 {
		t.Fatalf("expected 16000 samples, got %d", len(mono))
	}
	if mono[100] != 100 {
		t.Fatalf("expected averaged sample 100, got %d", mono[100])
	}
}

func TestBytesToSamplesRejectsOddLength(t *testing.T) {
	if _, err := BytesToSamples([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected alignment error")
	}
}
