package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var errNotWAV = errors.New("not a RIFF/WAVE payload")

// WAVInfo 描述WAV头中的格式信息
type WAVInfo struct {
	AudioFormat   uint16 // 1 = PCM
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataSize      int
}

// PCM reports whether the payload is uncompressed linear PCM.
func (w WAVInfo) PCM() bool {
	return w.AudioFormat == 1 || w.AudioFormat == 0xFFFE
}

// InspectWAV walks the RIFF chunks far enough to find "fmt " and "data".
func InspectWAV(data []byte) (WAVInfo, error) {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return WAVInfo{}, errNotWAV
	}

	var (
		info    WAVInfo
		haveFmt bool
	)

	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return WAVInfo{}, fmt.Errorf("truncated fmt chunk")
			}
			info.AudioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return WAVInfo{}, fmt.Errorf("data chunk before fmt chunk")
			}
			info.DataSize = size
			if size == 0 || body+size > len(data) {
				// 浏览器录音的流式头部常把长度写成0或超长，以实际长度为准
				info.DataSize = len(data) - body
			}
			return info, nil
		}

		// chunks are word aligned
		offset = body + size + size%2
	}

	if !haveFmt {
		return WAVInfo{}, fmt.Errorf("missing fmt chunk")
	}
	return WAVInfo{}, fmt.Errorf("missing data chunk")
}

// EncodeWAV wraps little-endian PCM samples in a canonical 44-byte header.
func EncodeWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	blockAlign := channels * bitsPerSample / 8
	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
