package messaging

import (
	"context"
	"sync"
)

// SentMessage records one delivery made through the MemorySender.
type SentMessage struct {
	TeamID  string
	To      string
	Body    string
	Buttons []Button
}

// MemorySender collects messages in memory. Used by tests.
type MemorySender struct {
	mu       sync.Mutex
	messages []SentMessage

	// Err, when set, is returned by every send.
	Err error
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) SendText(_ context.Context, teamID, contactPhone, body string) error {
	if s.Err != nil {
		return s.Err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, SentMessage{TeamID: teamID, To: contactPhone, Body: body})

	return nil
}

func (s *MemorySender) SendInteractive(_ context.Context, teamID, contactPhone, body string, buttons []Button) error {
	if s.Err != nil {
		return s.Err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, SentMessage{TeamID: teamID, To: contactPhone, Body: body, Buttons: buttons})

	return nil
}

// Messages returns a copy of everything sent so far.
func (s *MemorySender) Messages() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SentMessage, len(s.messages))
	copy(out, s.messages)

	return out
}

var _ Sender = (*MemorySender)(nil)
