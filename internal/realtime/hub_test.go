package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestClient(userID uuid.UUID) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Send:   make(chan []byte, 8),
	}
}

func recvJSON(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-c.Send:
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &out))
		return out
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func requireEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected message: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

// A join issued immediately after connecting must land; registration
// is synchronous so there is no window where it can be dropped.
func TestJoinRightAfterRegister(t *testing.T) {
	h := NewHub()
	sessionID := uuid.New()
	c := newTestClient(uuid.New())

	h.RegisterClient(c)
	h.JoinSession(c, sessionID)
	require.True(t, h.IsSubscribed(c.UserID, sessionID))
}

func TestJoinUnregisteredClient(t *testing.T) {
	h := NewHub()
	sessionID := uuid.New()
	c := newTestClient(uuid.New())

	h.JoinSession(c, sessionID)
	require.False(t, h.IsSubscribed(c.UserID, sessionID))
}

func TestSendToSession(t *testing.T) {
	h := NewHub()
	sessionID := uuid.New()
	a := newTestClient(uuid.New())
	b := newTestClient(uuid.New())
	outsider := newTestClient(uuid.New())

	for _, c := range []*Client{a, b, outsider} {
		h.RegisterClient(c)
	}
	h.JoinSession(a, sessionID)
	h.JoinSession(b, sessionID)
	h.JoinSession(outsider, uuid.New())

	h.SendToSession(sessionID, map[string]string{"type": "new_message", "text": "hello"})

	for _, c := range []*Client{a, b} {
		got := recvJSON(t, c)
		require.Equal(t, "new_message", got["type"])
		require.Equal(t, "hello", got["text"])
	}
	requireEmpty(t, outsider)
}

func TestSendToSessionPreservesOrder(t *testing.T) {
	h := NewHub()
	sessionID := uuid.New()
	c := newTestClient(uuid.New())
	h.RegisterClient(c)
	h.JoinSession(c, sessionID)

	for i := 0; i < 5; i++ {
		h.SendToSession(sessionID, map[string]int{"seq": i})
	}
	for i := 0; i < 5; i++ {
		got := recvJSON(t, c)
		require.Equal(t, float64(i), got["seq"])
	}
}

func TestSendToUser(t *testing.T) {
	h := NewHub()
	userID := uuid.New()
	first := newTestClient(userID)
	second := newTestClient(userID)
	other := newTestClient(uuid.New())

	for _, c := range []*Client{first, second, other} {
		h.RegisterClient(c)
	}

	h.SendToUser(userID, map[string]string{"type": "proposal_accepted"})

	require.Equal(t, "proposal_accepted", recvJSON(t, first)["type"])
	require.Equal(t, "proposal_accepted", recvJSON(t, second)["type"])
	requireEmpty(t, other)
}

func TestLeaveSession(t *testing.T) {
	h := NewHub()
	sessionID := uuid.New()
	c := newTestClient(uuid.New())
	h.RegisterClient(c)
	h.JoinSession(c, sessionID)

	h.LeaveSession(c, sessionID)
	require.False(t, h.IsSubscribed(c.UserID, sessionID))

	h.SendToSession(sessionID, map[string]string{"type": "new_message"})
	requireEmpty(t, c)
}

func TestUnregisterCleansSessions(t *testing.T) {
	h := NewHub()
	sessionID := uuid.New()
	c := newTestClient(uuid.New())
	h.RegisterClient(c)
	h.JoinSession(c, sessionID)

	h.UnregisterClient(c)
	require.False(t, h.IsSubscribed(c.UserID, sessionID))

	// Send channel is closed on unregister.
	_, open := <-c.Send
	require.False(t, open)
}
