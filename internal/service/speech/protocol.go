package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// 火山引擎语音二进制帧：
// 4字节头 | [4字节序号] | [事件元数据] | [4字节错误码] | 4字节负载长度 | 负载

const protocolVersion = 0b0001

type messageType uint8

const (
	msgFullClientRequest       messageType = 0b0001
	msgAudioOnlyRequest        messageType = 0b0010
	msgFullServerResponse      messageType = 0b1001
	msgAudioOnlyServerResponse messageType = 0b1011
	msgError                   messageType = 0b1111
)

type messageFlags uint8

const (
	flagNoSequence       messageFlags = 0b0000
	flagPositiveSequence messageFlags = 0b0001
	flagLastNoSequence   messageFlags = 0b0010
	flagNegativeSequence messageFlags = 0b0011
	flagWithEvent        messageFlags = 0b0100

	sequenceMask messageFlags = 0b0011
)

type eventType int32

const (
	eventStartConnection    eventType = 1
	eventFinishConnection   eventType = 2
	eventConnectionStarted  eventType = 50
	eventConnectionFailed   eventType = 51
	eventConnectionFinished eventType = 52
	eventSessionStarted     eventType = 150
	eventSessionFinished    eventType = 152
	eventSessionFailed      eventType = 153
)

type serialization uint8

const (
	serialNone serialization = 0b0000
	serialJSON serialization = 0b0001
)

type compression uint8

const (
	compressNone compression = 0b0000
	compressGzip compression = 0b0001
)

var errShortHeader = errors.New("frame header too short")

// frame 一条协议消息
type frame struct {
	Type        messageType
	Flags       messageFlags
	Serial      serialization
	Compression compression

	Sequence  int32
	Event     eventType
	SessionID string
	ConnectID string
	ErrorCode uint32
	Payload   []byte
}

func (f *frame) hasSequence() bool {
	s := f.Flags & sequenceMask
	return s == flagPositiveSequence || s == flagNegativeSequence
}

func (f *frame) hasEvent() bool {
	return f.Flags&flagWithEvent == flagWithEvent
}

// last 负序号或无序号尾包都表示最后一帧
func (f *frame) last() bool {
	s := f.Flags & sequenceMask
	return s == flagLastNoSequence || s == flagNegativeSequence
}

// body returns the decompressed payload.
func (f *frame) body() ([]byte, error) {
	return decompress(f.Payload, f.Compression)
}

func (f *frame) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 16+len(f.Payload))
	buf = append(buf,
		protocolVersion<<4|0b0001,
		byte(f.Type)<<4|byte(f.Flags),
		byte(f.Serial)<<4|byte(f.Compression),
		0x00,
	)

	if f.hasSequence() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Sequence))
	}

	if f.hasEvent() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Event))
		if !eventSkipsSession(f.Event) {
			buf = appendSized(buf, f.SessionID)
		}
		if eventCarriesConnect(f.Event) {
			buf = appendSized(buf, f.ConnectID)
		}
	}

	if f.Type == msgError {
		buf = binary.BigEndian.AppendUint32(buf, f.ErrorCode)
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Payload)))
	return append(buf, f.Payload...), nil
}

func appendSized(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func parseFrame(data []byte) (*frame, error) {
	if len(data) < 4 {
		return nil, errShortHeader
	}
	if version := data[0] >> 4; version != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", version)
	}

	f := &frame{
		Type:        messageType(data[1] >> 4),
		Flags:       messageFlags(data[1] & 0x0F),
		Serial:      serialization(data[2] >> 4),
		Compression: compression(data[2] & 0x0F),
	}

	// 头部可能带扩展字段，按 header size 跳过
	headerSize := int(data[0]&0x0F) * 4
	if headerSize < 4 || len(data) < headerSize {
		return nil, errShortHeader
	}
	r := bytes.NewReader(data[headerSize:])

	if f.hasSequence() {
		seq, err := readUint32(r, "sequence")
		if err != nil {
			return nil, err
		}
		f.Sequence = int32(seq)
	}

	if f.hasEvent() {
		event, err := readUint32(r, "event type")
		if err != nil {
			return nil, err
		}
		f.Event = eventType(int32(event))

		if !eventSkipsSession(f.Event) {
			if f.SessionID, err = readSized(r, "session id"); err != nil {
				return nil, err
			}
		}
		if eventCarriesConnect(f.Event) {
			if f.ConnectID, err = readSized(r, "connect id"); err != nil {
				return nil, err
			}
		}
	}

	if f.Type == msgError {
		code, err := readUint32(r, "error code")
		if err != nil {
			return nil, err
		}
		f.ErrorCode = code
	}

	size, err := readUint32(r, "payload size")
	if err != nil {
		return nil, err
	}
	if size > 0 {
		f.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return nil, fmt.Errorf("read payload (expected %d bytes): %w", size, err)
		}
	}

	return f, nil
}

func readUint32(r io.Reader, field string) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read %s: %w", field, err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readSized(r io.Reader, field string) (string, error) {
	size, err := readUint32(r, field+" size")
	if err != nil {
		return "", err
	}
	if size == 0 {
		return "", nil
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read %s: %w", field, err)
	}
	return string(b), nil
}

func eventSkipsSession(e eventType) bool {
	switch e {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

func eventCarriesConnect(e eventType) bool {
	switch e {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

// clientRequest 首帧：JSON 请求参数
func clientRequest(payload []byte, c compression) *frame {
	return &frame{
		Type:        msgFullClientRequest,
		Flags:       flagNoSequence,
		Serial:      serialJSON,
		Compression: c,
		Payload:     payload,
	}
}

// audioRequest 音频分包，最后一包序号取负
func audioRequest(chunk []byte, seq int32, last bool, c compression) *frame {
	f := &frame{
		Type:        msgAudioOnlyRequest,
		Serial:      serialNone,
		Compression: c,
		Sequence:    seq,
		Payload:     chunk,
	}

	switch {
	case last && seq != 0:
		f.Flags = flagNegativeSequence
		f.Sequence = -seq
	case last:
		f.Flags = flagLastNoSequence
	case seq > 0:
		f.Flags = flagPositiveSequence
	default:
		f.Flags = flagNoSequence
	}
	return f
}
