// Package audio converts between PCM frames, float sample buffers and the
// base64 text used on JSON transports.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
)

var ErrOddLength = errors.New("pcm payload is not a whole number of frames")

// Encode maps bytes to standard base64 without line breaks.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode is the inverse of Encode.
func Decode(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio payload: %w", err)
	}
	return data, nil
}

// PCMToBuffer reads interleaved signed 16-bit little-endian samples and
// returns them deinterleaved and scaled into [-1, 1).
func PCMToBuffer(pcm []byte, sampleRate, channels int) (entities.AudioBuffer, error) {
	if channels < 1 {
		return entities.AudioBuffer{}, fmt.Errorf("channel count must be positive, got %d", channels)
	}
	if sampleRate < 1 {
		return entities.AudioBuffer{}, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	frameBytes := 2 * channels
	if len(pcm)%frameBytes != 0 {
		return entities.AudioBuffer{}, fmt.Errorf("%w: %d bytes for %d channel(s)", ErrOddLength, len(pcm), channels)
	}

	frames := len(pcm) / frameBytes
	buf := entities.AudioBuffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for ch := range buf.Channels {
		buf.Channels[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[off:]))
			buf.Channels[ch][i] = float32(sample) / 32768
		}
	}
	return buf, nil
}

// FloatToPCM16 converts captured float samples to little-endian 16-bit PCM.
// Values outside [-1, 1] are clamped rather than wrapped.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float32) int16 {
	v := float64(s) * 32768
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// PCM16ToFloat is the mono inverse of FloatToPCM16, used when capture arrives as raw PCM.
func PCM16ToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out
}

// RMS is the root-mean-square level of a buffer, used for the input meter.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
