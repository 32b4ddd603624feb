// Package main provides a CI-friendly WebSocket smoke test for todosync.
//
// It validates, against a running server:
//   - handshake gating (token required) + subprotocol selection
//   - addTodo -> todoAdded fanout to a sibling connection
//   - sender-only todoAddedConfirmation
//   - fetchTodos round-trip
//   - updateTodo and deleteTodo broadcast + confirmation
//
// Both clients must present a token resolving to the same user (e.g. the
// TODOSYNC_DEV_SESSION_TOKEN seeded session).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "todosync/shared/contracts/sync/v1"

	"github.com/coder/websocket"
)

const (
	defaultSubprotocol = "todosync.sync.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		token   = flag.String("token", os.Getenv("TODOSYNC_DEV_SESSION_TOKEN"), "Session token for both clients")
		title   = flag.String("title", "smoke test todo", "Todo title to create")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if strings.TrimSpace(*token) == "" {
		fatalf("missing -token (or TODOSYNC_DEV_SESSION_TOKEN)")
	}

	root := context.Background()

	a := mustConnect(root, "A", *wsURL, *origin, *token, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *origin, *token, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A and B, origin=%q\n", *origin)
	}

	// addTodo from A: both clients see todoAdded, only A gets the confirmation.
	mustSend(root, a, v1.TypeAddTodo, v1.AddTodoPayload{Title: *title}, *timeout)

	addedA := mustReceive(root, a, v1.TypeTodoAdded, *timeout)
	var rec v1.TodoPayload
	mustDecode(addedA.Payload, &rec)
	if rec.Title != *title || rec.Completed {
		fatalf("unexpected todoAdded record: %+v", rec)
	}

	addedB := mustReceive(root, b, v1.TypeTodoAdded, *timeout)
	var recB v1.TodoPayload
	mustDecode(addedB.Payload, &recB)
	if recB.ID != rec.ID {
		fatalf("fanout mismatch: A saw id=%d, B saw id=%d", rec.ID, recB.ID)
	}

	conf := mustReceive(root, a, v1.TypeTodoAddedConfirmation, *timeout)
	var confRec v1.TodoPayload
	mustDecode(conf.Payload, &confRec)
	if confRec.ID != rec.ID {
		fatalf("confirmation mismatch: %+v", confRec)
	}

	// fetchTodos round-trip on B.
	mustSend(root, b, v1.TypeFetchTodos, nil, *timeout)
	todosEnv := mustReceive(root, b, v1.TypeTodos, *timeout)
	var list []v1.TodoPayload
	mustDecode(todosEnv.Payload, &list)
	if !containsID(list, rec.ID) {
		fatalf("fetchTodos did not return id=%d (got %d records)", rec.ID, len(list))
	}

	// updateTodo from A, observed on B.
	mustSend(root, a, v1.TypeUpdateTodo, v1.UpdateTodoPayload{ID: rec.ID, Completed: true}, *timeout)
	updated := mustReceive(root, b, v1.TypeTodoUpdated, *timeout)
	var up v1.TodoCompletedPayload
	mustDecode(updated.Payload, &up)
	if up.ID != rec.ID || !up.Completed {
		fatalf("unexpected todoUpdated payload: %+v", up)
	}
	_ = mustReceive(root, a, v1.TypeTodoUpdateConfirmation, *timeout)

	// deleteTodo from A, observed on B (bare id payload).
	mustSend(root, a, v1.TypeDeleteTodo, v1.DeleteTodoPayload{ID: rec.ID}, *timeout)
	deleted := mustReceive(root, b, v1.TypeTodoDeleted, *timeout)
	var deletedID int64
	mustDecode(deleted.Payload, &deletedID)
	if deletedID != rec.ID {
		fatalf("unexpected todoDeleted id: %d", deletedID)
	}
	_ = mustReceive(root, a, v1.TypeTodoDeleteConfirmation, *timeout)

	fmt.Println("ws-smoke: OK")
}

func mustConnect(ctx context.Context, name, wsURL, origin, token string, timeout time.Duration) *smokeClient {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	h.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		fatalf("%s: dial failed (status=%d): %v", name, status, err)
	}
	if sp := conn.Subprotocol(); sp != defaultSubprotocol {
		fatalf("%s: unexpected subprotocol: %q", name, sp)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 64),
		errCh: make(chan error, 1),
	}
	go c.readLoop(ctx)
	return c
}

func (c *smokeClient) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.errCh <- err
			return
		}
		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.errCh <- fmt.Errorf("decode envelope: %w", err)
			return
		}
		select {
		case c.inbox <- env:
		default:
			// Inbox saturation means the smoke run is already broken.
			c.errCh <- errors.New("inbox overflow")
			return
		}
	}
}

func mustSend(ctx context.Context, c *smokeClient, typ string, payload any, timeout time.Duration) {
	env := v1.Envelope{V: v1.Version, Type: typ, TS: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			fatalf("%s: marshal %s payload: %v", c.name, typ, err)
		}
		env.Payload = raw
	}

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("%s: marshal %s envelope: %v", c.name, typ, err)
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.conn.Write(wctx, websocket.MessageText, b); err != nil {
		fatalf("%s: write %s: %v", c.name, typ, err)
	}
}

func mustReceive(ctx context.Context, c *smokeClient, typ string, timeout time.Duration) v1.Envelope {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case env := <-c.inbox:
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("%s: server error while waiting for %s: %s", c.name, typ, ep.Message)
			}
			if env.Type == typ {
				return env
			}
			// Unrelated fanout (e.g. our own broadcast on the other step): keep waiting.
		case err := <-c.errCh:
			fatalf("%s: read failed while waiting for %s: %v", c.name, typ, err)
		case <-deadline.C:
			fatalf("%s: timed out waiting for %s", c.name, typ)
		case <-ctx.Done():
			fatalf("%s: context done while waiting for %s", c.name, typ)
		}
	}
}

func mustDecode(raw json.RawMessage, dst any) {
	if err := json.Unmarshal(raw, dst); err != nil {
		fatalf("decode payload: %v", err)
	}
}

func containsID(list []v1.TodoPayload, id int64) bool {
	for _, t := range list {
		if t.ID == id {
			return true
		}
	}
	return false
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ws-smoke: "+format+"\n", args...)
	os.Exit(1)
}
