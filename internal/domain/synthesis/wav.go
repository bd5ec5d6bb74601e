package synthesis

import "encoding/binary"

// WAV header constants for the streamed PCM format.
const (
	wavHeaderSize = 44
	bitsPerSample = 16
	numChannels   = 1
)

// WAVHeader builds a RIFF/WAVE preamble for 16-bit mono PCM with the given
// payload size in bytes.
func WAVHeader(sampleRate int, dataSize uint32) []byte {
	header := make([]byte, wavHeaderSize)

	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataSize)
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(header[22:24], numChannels)
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)

	return header
}

// StreamWAVHeader is the first element of every streamed response. Total
// content length is unknown up front, so the size fields carry the maximum
// the format can express; players treat that as "read until EOF".
func StreamWAVHeader(sampleRate int) []byte {
	return WAVHeader(sampleRate, 0xFFFFFFFF-36)
}

// SilenceWAV renders a complete silent clip, used as the immediate response
// body when playback happens server-side in streaming deployments.
func SilenceWAV(sampleRate int, seconds float64) []byte {
	samples := int(float64(sampleRate) * seconds)
	dataSize := uint32(samples * numChannels * bitsPerSample / 8)
	buf := make([]byte, 0, wavHeaderSize+int(dataSize))
	buf = append(buf, WAVHeader(sampleRate, dataSize)...)
	return append(buf, make([]byte, dataSize)...)
}
