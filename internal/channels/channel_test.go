package channels

import (
	"context"
	"testing"
	"time"

	"github.com/perchbot/perch/internal/bus"
)

// TestIsAllowed covers the allow-list matching rules including the
// compound "id|username" form on either side.
func TestIsAllowed(t *testing.T) {
	tests := []struct {
		name      string
		allowList []string
		senderID  string
		want      bool
	}{
		{"empty list admits all", nil, "12345", true},
		{"exact id match", []string{"12345"}, "12345", true},
		{"exact id mismatch", []string{"12345"}, "99999", false},
		{"compound sender, id component matches", []string{"12345"}, "12345|alice", true},
		{"compound sender, username component matches", []string{"alice"}, "12345|alice", true},
		{"compound allow entry matches id", []string{"12345|alice"}, "12345", true},
		{"compound allow entry matches username", []string{"12345|alice"}, "alice", true},
		{"at-prefixed username", []string{"@alice"}, "12345|alice", true},
		{"no component overlap", []string{"67890|bob"}, "12345|alice", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewBaseChannel("test", bus.New(), tt.allowList)
			if got := c.IsAllowed(tt.senderID); got != tt.want {
				t.Errorf("IsAllowed(%q) with %v = %t, want %t", tt.senderID, tt.allowList, got, tt.want)
			}
		})
	}
}

// TestHandleMessagePublishes verifies accepted messages reach the bus
// with the channel's routing fields.
func TestHandleMessagePublishes(t *testing.T) {
	b := bus.New()
	c := NewBaseChannel("telegram", b, nil)

	c.HandleMessage("7|alice", "42", "hello", []string{"/tmp/a.png"}, map[string]string{"message_id": "m1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no message published")
	}
	if msg.Channel != "telegram" || msg.SenderID != "7|alice" || msg.ChatID != "42" {
		t.Errorf("message = %+v", msg)
	}
	if msg.SessionKey() != "telegram:42" {
		t.Errorf("session key = %q", msg.SessionKey())
	}
	if len(msg.Media) != 1 || msg.Metadata["message_id"] != "m1" {
		t.Errorf("media/metadata = %v %v", msg.Media, msg.Metadata)
	}
}

// TestHandleMessageDeniedDropped verifies denied senders publish
// nothing.
func TestHandleMessageDeniedDropped(t *testing.T) {
	b := bus.New()
	c := NewBaseChannel("telegram", b, []string{"99999"})

	c.HandleMessage("12345", "42", "hello", nil, nil)

	if b.InboundLen() != 0 {
		t.Errorf("denied message was published, queue len = %d", b.InboundLen())
	}
}

// TestTruncate verifies the preview helper.
func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("a long string here", 6); got != "a long..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("héllo wörld", 6); got != "héllo ..." {
		t.Errorf("Truncate = %q", got)
	}
}
