package vibe

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/phayes/freeport"

	"github.com/mizchi/vibe-lang-sub001/pkg/util"
)

type testServerArgs struct {
	dataFilePath     string
	preserveWhenDone bool
}

type testServerRef struct {
	server           *Server
	client           *Client
	dataFilePath     string
	tmpDir           string
	preserveWhenDone bool
}

func (tsr *testServerRef) close() {
	tsr.client.Close()
	tsr.server.Close()
	if tsr.tmpDir != "" && !tsr.preserveWhenDone {
		os.RemoveAll(tsr.tmpDir)
	}
}

func NewTestServer(args testServerArgs) (*testServerRef, *Client, error) {
	dataFilePath := args.dataFilePath
	tmpDir := ""
	if dataFilePath == "" {
		dir, err := ioutil.TempDir("", "vibe-test")
		if err != nil {
			return nil, nil, err
		}
		tmpDir = dir
		dataFilePath = dir + "/test.data"
	}

	port := freeport.GetPort()

	server, err := NewServer(dataFilePath, "localhost", port)
	if err != nil {
		return nil, nil, err
	}
	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	// The server goroutine may not have bound the listener yet; wait
	// until the port accepts connections before dialing the client.
	addr := fmt.Sprintf("localhost:%d", port)
	for i := 0; i < 100; i++ {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	url := fmt.Sprintf("ws://localhost:%d/ws", port)
	client, err := NewClient(url)
	if err != nil {
		return nil, nil, err
	}

	return &testServerRef{
		server:           server,
		client:           client,
		dataFilePath:     dataFilePath,
		tmpDir:           tmpDir,
		preserveWhenDone: args.preserveWhenDone,
	}, client, nil
}

// One step of a protocol test script: an add input, or a raw request.
// Each expects either an error or a result (compared as indented JSON
// when expected, skipped when empty).
type simpleTestStmt struct {
	add string
	req *Request

	error  string
	result string
}

// runSimpleTestScript spins up a test server and runs requests on it,
// checking each result.
func runSimpleTestScript(t *testing.T, cases []simpleTestStmt) *testServerRef {
	ts, client, err := NewTestServer(testServerArgs{})
	if err != nil {
		t.Fatal(err)
	}

	for idx, testCase := range cases {
		req := testCase.req
		if testCase.add != "" {
			req = &Request{Op: "add", Input: testCase.add}
		}
		raw, err := client.Query(req)
		if util.AssertError(t, idx, testCase.error, err) {
			continue
		}
		if testCase.result == "" {
			continue
		}
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("case %d: invalid result JSON: %v", idx, err)
		}
		indented, _ := json.MarshalIndent(decoded, "", "  ")
		if string(indented) != testCase.result {
			t.Fatalf("case %d: expected:\n%s\ngot:\n%s", idx, testCase.result, indented)
		}
	}

	return ts
}
