package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ashureev/aicare/internal/dialogue"
	"github.com/ashureev/aicare/internal/domain"
)

type scriptedConversation struct {
	started domain.BackendChoice
	seen    []string
}

func (s *scriptedConversation) Start(_ context.Context, _ string, choice domain.BackendChoice) (dialogue.Reply, error) {
	s.started = choice
	return dialogue.Reply{Text: dialogue.Greeting, State: domain.StateNameExtraction}, nil
}

func (s *scriptedConversation) HandleMessage(_ context.Context, _ string, text string) (dialogue.Reply, error) {
	s.seen = append(s.seen, text)
	if text == "bye" {
		return dialogue.Reply{Text: "Goodbye then.", State: domain.StateEnd, Ended: true}, nil
	}
	return dialogue.Reply{Text: "Anna, are you here because of a dental health <b>problem</b>?", State: domain.StateCareCategory}, nil
}

func TestRunChatUntilEnded(t *testing.T) {
	t.Parallel()

	conv := &scriptedConversation{}
	in := strings.NewReader("I'm Anna\n\n  \nbye\nignored\n")
	var out bytes.Buffer

	if err := runChat(context.Background(), conv, "u1", domain.BackendRemote, in, &out); err != nil {
		t.Fatalf("runChat() error: %v", err)
	}

	if conv.started != domain.BackendRemote {
		t.Errorf("started with %q", conv.started)
	}
	if len(conv.seen) != 2 || conv.seen[0] != "I'm Anna" || conv.seen[1] != "bye" {
		t.Fatalf("engine saw %q", conv.seen)
	}

	got := out.String()
	for _, want := range []string{
		"AIcare: " + dialogue.Greeting,
		"AIcare: Anna, are you here because of a dental health problem?",
		"AIcare: Goodbye then.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunChatStopsAtEOF(t *testing.T) {
	t.Parallel()

	conv := &scriptedConversation{}
	var out bytes.Buffer
	if err := runChat(context.Background(), conv, "u1", "", strings.NewReader("hello"), &out); err != nil {
		t.Fatalf("runChat() error: %v", err)
	}
	if len(conv.seen) != 1 {
		t.Fatalf("engine saw %q", conv.seen)
	}
}
