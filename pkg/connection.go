package vibe

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"

	clog "github.com/mizchi/vibe-lang-sub001/pkg/log"
)

type connectionID int

// connection owns one websocket: a read loop decoding requests, a
// write loop serializing responses, and the session the requests run
// against.
type connection struct {
	clientConn *websocket.Conn
	id         connectionID
	codebase   *Codebase
	session    *Session
	messages   chan *Response
	writerDone chan struct{}
	context    context.Context
}

func newConnection(wsConn *websocket.Conn, cb *Codebase, id int) *connection {
	session := cb.NewSession()
	ctx := context.WithValue(session.Ctx(), clog.ConnIDKey, id)
	conn := &connection{
		clientConn: wsConn,
		id:         connectionID(id),
		codebase:   cb,
		session:    session,
		messages:   make(chan *Response),
		writerDone: make(chan struct{}),
		context:    ctx,
	}
	go conn.writeMessagesToSocket()
	return conn
}

func (conn *connection) Ctx() context.Context {
	return conn.context
}

func (conn *connection) writeMessagesToSocket() {
	defer close(conn.writerDone)
	for msg := range conn.messages {
		encoded, err := json.Marshal(msg)
		if err != nil {
			clog.Println(conn, "error encoding response:", err)
			continue
		}
		if err := conn.clientConn.WriteMessage(websocket.TextMessage, encoded); err != nil {
			clog.Println(conn, "error writing to socket:", err)
			break
		}
	}
}

// send hands a response to the write loop. Responses are dropped once
// the writer has exited on a write error, so request handlers never
// block on a dead socket.
func (conn *connection) send(resp *Response) {
	select {
	case conn.messages <- resp:
	case <-conn.writerDone:
	}
}

func (conn *connection) handleRequests() {
	clog.Println(conn, "initiated from", conn.clientConn.RemoteAddr())
	for {
		_, message, readErr := conn.clientConn.ReadMessage()
		if readErr != nil {
			clog.Println(conn, "terminated:", readErr)
			conn.codebase.removeConn(conn)
			close(conn.messages)
			return
		}
		request := &Request{}
		if err := json.Unmarshal(message, request); err != nil {
			errStr := (&parseError{error: err}).Error()
			conn.send(&Response{Type: ErrorResponse, Error: &errStr})
			continue
		}
		newChannel(request, conn).handleRequest()
	}
}
