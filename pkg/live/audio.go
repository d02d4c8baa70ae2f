package live

import (
	"encoding/binary"
	"math"
	"time"
)

// AudioConfig describes a raw PCM stream shape.
type AudioConfig struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// CaptureAudioConfig is the microphone format sent upstream.
var CaptureAudioConfig = AudioConfig{
	SampleRate:    16000,
	Channels:      1,
	BitsPerSample: 16,
}

// PlaybackAudioConfig is the reply audio format received downstream.
var PlaybackAudioConfig = AudioConfig{
	SampleRate:    24000,
	Channels:      1,
	BitsPerSample: 16,
}

func (c AudioConfig) BytesPerSample() int {
	return c.BitsPerSample / 8 * c.Channels
}

func (c AudioConfig) BytesPerSecond() int {
	return c.SampleRate * c.BytesPerSample()
}

// Duration reports the play time of a PCM buffer of the given length.
func (c AudioConfig) Duration(numBytes int) time.Duration {
	bps := c.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(float64(numBytes) / float64(bps) * float64(time.Second))
}

// BytesFor reports the PCM buffer length covering the given duration,
// rounded down to a whole sample.
func (c AudioConfig) BytesFor(d time.Duration) int {
	n := int(float64(c.BytesPerSecond()) * d.Seconds())
	step := c.BytesPerSample()
	if step > 1 {
		n -= n % step
	}
	return n
}

// CalculateRMSEnergy computes the normalized RMS level of a 16-bit
// little-endian PCM buffer, in the range [0, 1].
func CalculateRMSEnergy(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sum float64
	count := len(pcm) / 2
	for i := 0; i < count; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		v := float64(sample) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(count))
}
