package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/chatgate/internal/handlers"
	"github.com/memohai/chatgate/internal/logger"
)

func TestSubscriptionsSettle(t *testing.T) {
	subs := subscriptions{"1": false, "2": false}

	subs.settle(handlers.ServerFrame{Type: handlers.FrameError, ID: "2", Code: handlers.CodeNotFound})
	assert.NotContains(t, subs, "2")

	subs.settle(handlers.ServerFrame{Type: handlers.FrameSubscribed, ID: "1"})
	subs.settle(handlers.ServerFrame{Type: handlers.FrameError, ID: "1", Code: handlers.CodeLagged})
	assert.Contains(t, subs, "1")

	subs.settle(handlers.ServerFrame{Type: handlers.FrameMessage, ID: "1"})
	subs.settle(handlers.ServerFrame{Type: handlers.FrameComplete, ID: "9"})
	assert.Len(t, subs, 1)

	subs.settle(handlers.ServerFrame{Type: handlers.FrameComplete, ID: "1"})
	assert.Empty(t, subs)
}

// A lagged subscription sends error then complete; listen must keep streaming the others.
func TestListenKeepsStreamingAfterLaggedSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "JWT tok", r.Header.Get("Authorization"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for range 2 {
			var frame handlers.ClientFrame
			if err := wsjson.Read(ctx, conn, &frame); err != nil {
				return
			}
		}
		for _, frame := range []handlers.ServerFrame{
			{Type: handlers.FrameSubscribed, ID: "1", Channel: "general"},
			{Type: handlers.FrameSubscribed, ID: "2", Channel: "random"},
			{Type: handlers.FrameError, ID: "1", Code: handlers.CodeLagged, Message: "subscriber fell behind"},
			{Type: handlers.FrameComplete, ID: "1"},
			{Type: handlers.FrameMessage, ID: "2", Channel: "random", Message: map[string]string{"message": "still here"}},
			{Type: handlers.FrameComplete, ID: "2"},
		} {
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				return
			}
		}
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	var out bytes.Buffer
	a := &app{opts: &rootOptions{output: "json"}, logger: logger.Discard(), out: &out}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, a.listen(ctx, srv.URL, "tok", []string{"general", "random"}))
	assert.Contains(t, out.String(), "still here")
}
