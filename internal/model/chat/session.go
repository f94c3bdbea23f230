package chat

import "time"

// Audio 合成后的回复音频
type Audio struct {
	Data   []byte `json:"data,omitempty"`
	Format string `json:"format,omitempty"`
}

// Empty reports whether no audio bytes are present.
func (a Audio) Empty() bool {
	return len(a.Data) == 0
}

// Session captures one browser tab's conversation state.
type Session struct {
	ID         string     `json:"id"`
	Transcript Transcript `json:"transcript"`
	LastReply  string     `json:"lastReply"`
	LastAudio  Audio      `json:"lastAudio"`
	DedupKey   string     `json:"dedupKey,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// NewSession 创建带初始系统指令的会话
func NewSession(id, instructions string) Session {
	now := time.Now().UTC()
	return Session{
		ID:         id,
		Transcript: NewTranscript(instructions),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Reset returns the starting state of the session. Calling it repeatedly
// yields the same result.
func (s Session) Reset(instructions string) Session {
	if instructions == "" {
		instructions = s.Transcript.Instructions()
	}
	return Session{
		ID:         s.ID,
		Transcript: NewTranscript(instructions),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  time.Now().UTC(),
	}
}
