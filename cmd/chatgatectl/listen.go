package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	"github.com/memohai/chatgate/internal/auth"
	"github.com/memohai/chatgate/internal/handlers"
)

type listenOptions struct {
	server   string
	username string
	password string
	token    string
}

func newListenCommand(a *app) *cobra.Command {
	opts := &listenOptions{}
	cmd := &cobra.Command{
		Use:   "listen <channel>...",
		Short: "Stream new messages of channels from a running gateway",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			base := strings.TrimRight(opts.server, "/")
			if base == "" {
				base = "http://" + localAddr(a.runtime.ServerAddr)
			}
			token := opts.token
			if token == "" {
				if opts.username == "" {
					return errors.New("--username or --token is required")
				}
				if opts.password == "" {
					p, err := readPassword(cmd, "Password: ")
					if err != nil {
						return err
					}
					opts.password = p
				}
				t, err := fetchToken(ctx, base, opts.username, opts.password)
				if err != nil {
					return err
				}
				token = t
			}
			return a.listen(ctx, base, token, args)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "", "gateway base URL (default http://<server.addr>)")
	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "gateway username")
	cmd.Flags().StringVar(&opts.password, "password", "", "gateway password (prompted when omitted)")
	cmd.Flags().StringVar(&opts.token, "token", "", "access token instead of username and password")
	return cmd
}

func (a *app) listen(ctx context.Context, base, token string, channels []string) error {
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{auth.Scheme + " " + token}},
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.CloseNow()

	subs := subscriptions{}
	for i, channel := range channels {
		frame := handlers.ClientFrame{Type: handlers.FrameSubscribe, ID: fmt.Sprintf("%d", i+1), Channel: channel}
		if err := wsjson.Write(ctx, conn, frame); err != nil {
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		subs[frame.ID] = false
	}

	for len(subs) > 0 {
		var frame handlers.ServerFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if ctx.Err() != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		switch frame.Type {
		case handlers.FrameSubscribed:
			a.logger.Info("subscribed", slog.String("channel", frame.Channel))
		case handlers.FrameMessage:
			if err := a.print(frame.Message); err != nil {
				return err
			}
		case handlers.FrameError:
			a.logger.Error("subscription error",
				slog.String("id", frame.ID),
				slog.String("code", frame.Code),
				slog.Any("message", frame.Message))
		}
		subs.settle(frame)
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}

// subscriptions holds the subscribe ids still expecting frames. An id maps to true once
// the gateway acknowledged it.
type subscriptions map[string]bool

// settle drops ids whose stream is over. A rejected subscribe ends with its error frame,
// an acknowledged one only with complete, which may follow an error such as lagged.
func (s subscriptions) settle(frame handlers.ServerFrame) {
	acked, ok := s[frame.ID]
	if !ok {
		return
	}
	switch frame.Type {
	case handlers.FrameSubscribed:
		s[frame.ID] = true
	case handlers.FrameError:
		if !acked {
			delete(s, frame.ID)
		}
	case handlers.FrameComplete:
		delete(s, frame.ID)
	}
}

// fetchToken logs in through POST /auth/token.
func fetchToken(ctx context.Context, base, username, password string) (string, error) {
	body, err := json.Marshal(handlers.TokenRequest{Username: username, Password: password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	var env handlers.TokenEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || env.Token == "" {
		return "", fmt.Errorf("login: %s", env.Message)
	}
	return env.Token, nil
}

// localAddr turns a listen address such as ":8080" into a dialable host:port.
func localAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "127.0.0.1" + addr
	}
	return addr
}
