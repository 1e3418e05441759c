package vibe

import (
	"encoding/json"
	"testing"
	"time"
)

func TestServerScript(t *testing.T) {
	tsr := runSimpleTestScript(t, []simpleTestStmt{
		{
			add: `width = 800`,
		},
		{
			add: `height = 600`,
		},
		{
			add: `area = width * height`,
		},
		{
			req: &Request{Op: "type_of", Input: `area + 1`},
			result: `{
  "type": "int"
}`,
		},
		{
			req:   &Request{Op: "view", Name: "missing"},
			error: "name not bound: main/missing",
		},
		{
			req:   &Request{Op: "bogus"},
			error: `unknown op "bogus"`,
		},
		{
			req: &Request{Op: "update"},
			result: `{
  "edits": 0
}`,
		},
	})
	defer tsr.close()
}

func TestServerClientOps(t *testing.T) {
	ts, client, err := NewTestServer(testServerArgs{})
	if err != nil {
		t.Fatal(err)
	}
	defer ts.close()

	outcomes, err := client.Add("base = 2")
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || outcomes[0].Name != "base" || outcomes[0].Type != "int" {
		t.Fatalf("unexpected add result: %+v", outcomes[0])
	}

	if _, err := client.Add("doubled = base * 2"); err != nil {
		t.Fatal(err)
	}

	outcomes, err = client.Add("doubled + 1")
	if err != nil {
		t.Fatal(err)
	}
	if string(outcomes[0].Value) != "5" {
		t.Fatalf("got value %s; want 5", outcomes[0].Value)
	}

	typ, err := client.TypeOf("base < 3")
	if err != nil {
		t.Fatal(err)
	}
	if typ != "bool" {
		t.Fatalf("got type %q; want bool", typ)
	}

	bindings, err := client.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(bindings) != 2 {
		t.Fatalf("got %d bindings; want 2", len(bindings))
	}

	// Rebind and propagate over the wire.
	outcomes, err = client.Add("base = 3")
	if err != nil {
		t.Fatal(err)
	}
	if outcomes[0].Replaced == "" {
		t.Fatalf("the rebind should report the replaced hash")
	}
	update, err := client.Update()
	if err != nil {
		t.Fatal(err)
	}
	// Both doubled and the evaluated wrapper expression depend on base.
	if update.Edits != 1 || len(update.Steps) != 2 {
		t.Fatalf("unexpected update result: %+v", update)
	}
	for _, step := range update.Steps {
		if step.Error != "" {
			t.Fatalf("step failed: %s", step.Error)
		}
	}

	outcomes, err = client.Add("doubled")
	if err != nil {
		t.Fatal(err)
	}
	if string(outcomes[0].Value) != "6" {
		t.Fatalf("got value %s; want 6", outcomes[0].Value)
	}

	raw, err := client.Query(&Request{Op: "definition", Name: "doubled"})
	if err != nil {
		t.Fatal(err)
	}
	var deps []*DefResult
	if err := json.Unmarshal(raw, &deps); err != nil {
		t.Fatal(err)
	}
	if len(deps) != 1 || deps[0].Name != "main/base" {
		t.Fatalf("doubled should reference base; got %+v", deps)
	}

	raw, err = client.Query(&Request{Op: "status"})
	if err != nil {
		t.Fatal(err)
	}
	status := &StatusResult{}
	if err := json.Unmarshal(raw, status); err != nil {
		t.Fatal(err)
	}
	if status.Names != 2 || status.Connections != 1 || status.Definitions == 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.SessionID == "" {
		t.Fatalf("status should carry the session id")
	}
}

func TestConnectionSendAfterWriterExit(t *testing.T) {
	conn := &connection{
		messages:   make(chan *Response),
		writerDone: make(chan struct{}),
	}
	close(conn.writerDone)

	delivered := make(chan struct{})
	go func() {
		conn.send(&Response{})
		close(delivered)
	}()
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatalf("send should not block once the writer is gone")
	}
}
