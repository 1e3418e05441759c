package vibe

// Go client for the websocket protocol. Used by the integration tests
// and the shell's remote mode.

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/gorilla/websocket"
)

type Client struct {
	WebSocketConn    *websocket.Conn
	URL              string
	NextRequestID    int
	RequestsToSend   chan *clientRequest
	IncomingMessages chan *Response
	Pending          map[int]chan *Response
}

type clientRequest struct {
	Request    *Request
	ResultChan chan *Response
}

func NewClient(url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	client := &Client{
		WebSocketConn:    conn,
		URL:              url,
		RequestsToSend:   make(chan *clientRequest),
		IncomingMessages: make(chan *Response),
		Pending:          map[int]chan *Response{},
	}
	go client.handleRequests()
	go client.handleIncoming()
	return client, nil
}

func (c *Client) Close() error {
	return c.WebSocketConn.Close()
}

func (c *Client) handleRequests() {
	for {
		select {
		case outgoing := <-c.RequestsToSend:
			outgoing.Request.ID = c.NextRequestID
			c.NextRequestID++
			c.Pending[outgoing.Request.ID] = outgoing.ResultChan
			if err := c.WebSocketConn.WriteJSON(outgoing.Request); err != nil {
				log.Println("error writing request:", err)
			}

		case incoming := <-c.IncomingMessages:
			resultChan, ok := c.Pending[incoming.ID]
			if !ok {
				log.Println("response for unknown request id:", incoming.ID)
				continue
			}
			delete(c.Pending, incoming.ID)
			resultChan <- incoming
		}
	}
}

func (c *Client) handleIncoming() {
	defer c.WebSocketConn.Close()
	for {
		resp := &Response{}
		if err := c.WebSocketConn.ReadJSON(resp); err != nil {
			return
		}
		c.IncomingMessages <- resp
	}
}

// Do sends a request and waits for its response.
func (c *Client) Do(req *Request) (*Response, error) {
	resultChan := make(chan *Response, 1)
	c.RequestsToSend <- &clientRequest{
		Request:    req,
		ResultChan: resultChan,
	}
	resp := <-resultChan
	if resp.Error != nil {
		return nil, errors.New(*resp.Error)
	}
	return resp, nil
}

// Query runs an op and returns the raw result payload.
func (c *Client) Query(req *Request) (json.RawMessage, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.Type != ResultResponse {
		return nil, errors.New("response neither error nor result")
	}
	return resp.Result, nil
}

// Add submits language input.
func (c *Client) Add(input string) ([]*DefResult, error) {
	raw, err := c.Query(&Request{Op: "add", Input: input})
	if err != nil {
		return nil, err
	}
	var out []*DefResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TypeOf type checks an expression without storing it.
func (c *Client) TypeOf(input string) (string, error) {
	raw, err := c.Query(&Request{Op: "type_of", Input: input})
	if err != nil {
		return "", err
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	return out["type"], nil
}

// Update propagates the session's pending edits.
func (c *Client) Update() (*UpdateOpResult, error) {
	raw, err := c.Query(&Request{Op: "update"})
	if err != nil {
		return nil, err
	}
	out := &UpdateOpResult{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// List returns the current name bindings.
func (c *Client) List() ([]*DefResult, error) {
	raw, err := c.Query(&Request{Op: "list"})
	if err != nil {
		return nil, err
	}
	var out []*DefResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// View fetches a definition's source by name or hash prefix.
func (c *Client) View(target string) (*ViewResult, error) {
	req := &Request{Op: "view"}
	if len(target) > 0 && target[0] == '#' {
		req.Hash = target[1:]
	} else {
		req.Name = target
	}
	raw, err := c.Query(req)
	if err != nil {
		return nil, err
	}
	out := &ViewResult{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status reports store and session counters.
func (c *Client) Status() (*StatusResult, error) {
	raw, err := c.Query(&Request{Op: "status"})
	if err != nil {
		return nil, err
	}
	out := &StatusResult{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}
