package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

var ErrTransactionFailed = errors.New("transaction failed on chain")

// SignatureWatcher waits for a signature to reach a commitment level using
// the node's signatureSubscribe websocket method. Each call uses its own connection.
type SignatureWatcher struct {
	endpoint     string
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

func NewSignatureWatcher(endpoint string) *SignatureWatcher {
	return &SignatureWatcher{
		endpoint:     endpoint,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		writeTimeout: 5 * time.Second,
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type wsMessage struct {
	ID     *uint64         `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
	Params *struct {
		Result struct {
			Value struct {
				Err interface{} `json:"err"`
			} `json:"value"`
		} `json:"result"`
		Subscription int64 `json:"subscription"`
	} `json:"params,omitempty"`
}

// Await blocks until the signature is observed at commitment, the transaction
// fails (ErrTransactionFailed) or ctx ends.
func (w *SignatureWatcher) Await(ctx context.Context, signature, commitment string) error {
	conn, _, err := w.dialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// unblock ReadJSON when the caller gives up
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "signatureSubscribe",
		Params:  []interface{}{signature, map[string]string{"commitment": commitment}},
	}
	_ = conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read notification: %w", err)
		}

		switch {
		case msg.Error != nil:
			return msg.Error
		case msg.Method == "signatureNotification" && msg.Params != nil:
			if msg.Params.Result.Value.Err != nil {
				return fmt.Errorf("%w: %v", ErrTransactionFailed, msg.Params.Result.Value.Err)
			}
			return nil
		}
		// subscription confirmation; keep reading
	}
}
