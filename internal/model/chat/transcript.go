package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultInstructions 默认系统指令：只用乌尔都语回答。
const DefaultInstructions = "آپ ایک مددگار اے آئی اسسٹنٹ ہیں۔ آپ ہر وہ کام کر سکتے ہیں جو مناسب ہو لیکن آپ صرف اردو زبان جانتے ہیں اور ہمیشہ صرف اردو زبان میں جواب دیتے ہیں۔"

var (
	ErrEmptyTranscript = errors.New("transcript is empty")
	ErrMissingSystem   = errors.New("transcript must start with a system message")
	ErrMisplacedSystem = errors.New("system message is only allowed at position 0")
	ErrInvalidRole     = errors.New("invalid message role")
)

// Transcript is the ordered conversation history. Appending never touches
// the receiver's backing array, so messages already handed out stay intact.
type Transcript struct {
	messages []Message
}

// NewTranscript seeds a transcript with exactly one system message.
func NewTranscript(instructions string) Transcript {
	if instructions == "" {
		instructions = DefaultInstructions
	}
	return Transcript{messages: []Message{SystemMessage(instructions)}}
}

// TranscriptFrom rebuilds a transcript from stored messages and validates it.
func TranscriptFrom(messages []Message) (Transcript, error) {
	t := Transcript{messages: append([]Message(nil), messages...)}
	if err := t.Validate(); err != nil {
		return Transcript{}, err
	}
	return t, nil
}

// Append returns a new transcript with msg added at the end.
func (t Transcript) Append(msg Message) Transcript {
	next := make([]Message, len(t.messages), len(t.messages)+1)
	copy(next, t.messages)
	return Transcript{messages: append(next, msg)}
}

// Len returns the number of messages, system message included.
func (t Transcript) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the ordered messages.
func (t Transcript) Messages() []Message {
	return append([]Message(nil), t.messages...)
}

// Last returns the final message, if any.
func (t Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// Instructions returns the seeded system message content.
func (t Transcript) Instructions() string {
	if len(t.messages) == 0 {
		return ""
	}
	return t.messages[0].Content
}

// Window keeps the system message plus the trailing limit messages.
// limit <= 0 returns the whole transcript.
func (t Transcript) Window(limit int) []Message {
	if limit <= 0 || len(t.messages)-1 <= limit {
		return t.Messages()
	}
	out := make([]Message, 0, limit+1)
	out = append(out, t.messages[0])
	out = append(out, t.messages[len(t.messages)-limit:]...)
	return out
}

// Validate checks the transcript invariants.
func (t Transcript) Validate() error {
	if len(t.messages) == 0 {
		return ErrEmptyTranscript
	}
	for i, msg := range t.messages {
		if !msg.Role.Valid() {
			return fmt.Errorf("%w: %q at %d", ErrInvalidRole, msg.Role, i)
		}
		if i == 0 && msg.Role != RoleSystem {
			return ErrMissingSystem
		}
		if i > 0 && msg.Role == RoleSystem {
			return fmt.Errorf("%w: found at %d", ErrMisplacedSystem, i)
		}
	}
	return nil
}

// MarshalJSON encodes the transcript as its ordered message list.
func (t Transcript) MarshalJSON() ([]byte, error) {
	if t.messages == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.messages)
}

// UnmarshalJSON decodes and validates a stored message list.
func (t *Transcript) UnmarshalJSON(data []byte) error {
	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return err
	}
	restored, err := TranscriptFrom(messages)
	if err != nil {
		return err
	}
	*t = restored
	return nil
}
