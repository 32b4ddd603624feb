package v1

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEnvelopeValidate(t *testing.T) {
	t.Parallel()

	valid := Envelope{V: Version, Type: TypeAddTodo}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}

	cases := []struct {
		name string
		env  Envelope
		want string
	}{
		{name: "missing version", env: Envelope{Type: TypeAddTodo}, want: "missing field: v"},
		{name: "wrong version", env: Envelope{V: "v2", Type: TypeAddTodo}, want: "unsupported protocol version"},
		{name: "missing type", env: Envelope{V: Version}, want: "missing field: type"},
		{name: "unknown type", env: Envelope{V: Version, Type: "formatDisk"}, want: "unknown type"},
	}

	for _, tc := range cases {
		err := tc.env.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: got %q, want substring %q", tc.name, err, tc.want)
		}
	}
}

func TestEnvelopeValidate_AcceptsEveryWireType(t *testing.T) {
	t.Parallel()

	types := []string{
		TypeFetchTodos, TypeAddTodo, TypeUpdateTodo, TypeDeleteTodo,
		TypeTodos, TypeTodoAdded, TypeTodoUpdated, TypeTodoDeleted,
		TypeTodoAddedConfirmation, TypeTodoUpdateConfirmation, TypeTodoDeleteConfirmation,
		TypeError,
	}

	for _, typ := range types {
		env := Envelope{V: Version, Type: typ}
		if err := env.Validate(); err != nil {
			t.Fatalf("type %q rejected: %v", typ, err)
		}
	}
}

func TestTodoPayloadJSONShape(t *testing.T) {
	t.Parallel()

	env := Envelope{
		V:    Version,
		Type: TypeTodoAdded,
		TS:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	raw, err := json.Marshal(TodoPayload{ID: 7, Title: "milk", UserID: "user-1"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env.Payload = raw

	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	s := string(b)
	// The owner field is camelCase on the wire.
	if !strings.Contains(s, `"userId":"user-1"`) {
		t.Fatalf("payload missing userId field: %s", s)
	}
	if !strings.Contains(s, `"v":"v1"`) || !strings.Contains(s, `"type":"todoAdded"`) {
		t.Fatalf("envelope fields wrong: %s", s)
	}
}
