package solana

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer confirms the subscription and then sends notification (if non-empty).
func wsServer(t *testing.T, notification string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Method != "signatureSubscribe" {
			t.Errorf("unexpected method %s", req.Method)
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","result":42,"id":1}`))
		if notification != "" {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(notification))
		}
		// hold the connection until the client leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSignatureWatcher_Confirmed(t *testing.T) {
	url := wsServer(t, `{"jsonrpc":"2.0","method":"signatureNotification","params":{"result":{"context":{"slot":5},"value":{"err":null}},"subscription":42}}`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, NewSignatureWatcher(url).Await(ctx, "sig", CommitmentFinalized))
}

func TestSignatureWatcher_Failed(t *testing.T) {
	url := wsServer(t, `{"jsonrpc":"2.0","method":"signatureNotification","params":{"result":{"context":{"slot":5},"value":{"err":{"InstructionError":[0,"Custom"]}}},"subscription":42}}`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := NewSignatureWatcher(url).Await(ctx, "sig", CommitmentFinalized)
	assert.True(t, errors.Is(err, ErrTransactionFailed))
}

func TestSignatureWatcher_Timeout(t *testing.T) {
	url := wsServer(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := NewSignatureWatcher(url).Await(ctx, "sig", CommitmentFinalized)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
