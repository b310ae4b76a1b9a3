// Command terravision-ask sends one question to a running terravision server
// and prints the streamed answer.
//
//	terravision-ask -server http://localhost:8080 "How green is Iowa this summer?"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Berektassuly/terra-vision-ai/pkg/agent"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/transcript"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: terravision-ask [flags] <question>\n\nFlags:\n")
		flag.PrintDefaults()
	}

	serverURL := flag.String("server", "http://localhost:8080", "terravision server base URL")
	timeout := flag.Duration("timeout", 3*time.Minute, "give up after this long")
	raw := flag.Bool("raw", false, "print the answer without markdown rendering")
	verbose := flag.Bool("verbose", false, "show tool arguments and results")
	flag.Parse()

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	p := newPrinter(os.Stdout, !*raw, *verbose)
	if err := ask(ctx, *serverURL, question, p); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if p.failed {
		os.Exit(1)
	}
}

// ask opens the chat WebSocket, sends the question and feeds every event to
// p until the server closes the stream.
func ask(ctx context.Context, base, question string, p *printer) error {
	wsURL, err := chatURL(base)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", wsURL, err)
	}
	defer conn.CloseNow()

	conn.SetReadLimit(32 << 20)

	t := transcript.Transcript{Messages: []transcript.Message{{Role: "user", Content: question}}}
	if err := wsjson.Write(ctx, conn, t); err != nil {
		return fmt.Errorf("send question: %w", err)
	}

	for {
		var ev agent.Event
		err := wsjson.Read(ctx, conn, &ev)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return errors.New("timed out waiting for the answer")
			}
			return fmt.Errorf("read event: %w", err)
		}
		p.Handle(ev)
	}
}

// chatURL turns an http(s) base URL into the chat WebSocket URL.
func chatURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/api/chat/ws"
	return u.String(), nil
}
