package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// PeakLevel returns the highest absolute sample of s16le PCM, normalized to [0,1].
func PeakLevel(pcm []byte) float64 {
	var peak int
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int(int16(binary.LittleEndian.Uint16(pcm[i:])))
		if sample < 0 {
			sample = -sample
		}
		if sample > peak {
			peak = sample
		}
	}
	return math.Min(float64(peak)/32768.0, 1)
}

// RMSLevel returns the root-mean-square level of s16le PCM, normalized to [0,1].
func RMSLevel(pcm []byte) float64 {
	count := len(pcm) / 2
	if count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) / 32768.0
		sum += sample * sample
	}
	return math.Sqrt(sum / float64(count))
}

// PCMDuration converts a byte length of s16le PCM into wall-clock duration.
func PCMDuration(size int, sampleRate int, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSecond := 2 * channels * sampleRate
	return time.Duration(size) * time.Second / time.Duration(bytesPerSecond)
}
