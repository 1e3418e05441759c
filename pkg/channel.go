package vibe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
	clog "github.com/mizchi/vibe-lang-sub001/pkg/log"
)

// Request is one operation sent over the websocket protocol. The id is
// chosen by the client and echoed on every response.
type Request struct {
	ID    int    `json:"id"`
	Op    string `json:"op"`
	Input string `json:"input,omitempty"`
	Name  string `json:"name,omitempty"`
	Hash  string `json:"hash,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type ResponseType int

const (
	ErrorResponse ResponseType = iota
	AckResponse
	ResultResponse
)

func (rt ResponseType) String() string {
	switch rt {
	case ErrorResponse:
		return "error"
	case AckResponse:
		return "ack"
	case ResultResponse:
		return "result"
	}
	panic(fmt.Errorf("unknown response type %d", int(rt)))
}

func (rt ResponseType) MarshalText() ([]byte, error) {
	return []byte(rt.String()), nil
}

func (rt *ResponseType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "error":
		*rt = ErrorResponse
	case "ack":
		*rt = AckResponse
	case "result":
		*rt = ResultResponse
	default:
		return fmt.Errorf("unknown response type %#v", string(text))
	}
	return nil
}

type Response struct {
	ID     int             `json:"id"`
	Type   ResponseType    `json:"type"`
	Error  *string         `json:"error,omitempty"`
	Ack    *string         `json:"ack,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Wire shapes of result payloads.

type DefResult struct {
	Name     string          `json:"name,omitempty"`
	Hash     string          `json:"hash"`
	Type     string          `json:"type,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	Replaced string          `json:"replaced,omitempty"`
}

type ViewResult struct {
	Hash   string `json:"hash"`
	Kind   string `json:"kind"`
	Source string `json:"source"`
}

type UpdateStepResult struct {
	OldHash string   `json:"old_hash"`
	NewHash string   `json:"new_hash,omitempty"`
	Names   []string `json:"names,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type UpdateOpResult struct {
	Edits int                 `json:"edits"`
	Steps []*UpdateStepResult `json:"steps,omitempty"`
}

type StatusResult struct {
	Definitions  int    `json:"definitions"`
	Names        int    `json:"names"`
	Connections  int    `json:"connections"`
	SessionID    string `json:"session_id"`
	PendingEdits int    `json:"pending_edits"`
}

// channel handles one request on a connection.
type channel struct {
	connection *connection
	request    *Request
	context    context.Context
}

func (ch *channel) Ctx() context.Context {
	return ch.context
}

func newChannel(request *Request, conn *connection) *channel {
	ctx := context.WithValue(conn.Ctx(), clog.RequestIDKey, request.ID)
	return &channel{
		connection: conn,
		request:    request,
		context:    ctx,
	}
}

func (ch *channel) handleRequest() {
	resp, err := ch.run()
	if err != nil {
		clog.Println(ch, err.Error())
		ch.writeError(err)
		return
	}
	ch.connection.send(resp)
}

func (ch *channel) run() (*Response, error) {
	req := ch.request
	session := ch.connection.session

	switch req.Op {
	case "add":
		result, err := session.Add(ch.context, req.Input)
		if err != nil {
			return nil, err
		}
		return ch.resultResponse(outcomesToWire(result.Outcomes))
	case "name":
		outcome, err := session.BindName(req.Hash, req.Name)
		if err != nil {
			return nil, err
		}
		return ch.resultResponse(outcomesToWire([]*AddOutcome{outcome}))
	case "list":
		return ch.runList()
	case "view":
		return ch.runView()
	case "definition":
		return ch.runDefinition()
	case "type_of":
		typStr, err := session.cmdTypeOf(ch.context, req.Input)
		if err != nil {
			return nil, err
		}
		return ch.resultResponse(map[string]string{"type": typStr})
	case "eval":
		return ch.runEval()
	case "update":
		return ch.runUpdate()
	case "history":
		return ch.runHistory()
	case "find":
		return ch.runFind()
	case "references":
		return ch.runReferences()
	case "status":
		return ch.resultResponse(&StatusResult{
			Definitions:  session.codebase.store.count(),
			Names:        len(session.codebase.Names()),
			Connections:  session.codebase.connectionCount(),
			SessionID:    session.ID(),
			PendingEdits: len(session.Edits()),
		})
	default:
		return nil, fmt.Errorf("unknown op %#v", req.Op)
	}
}

func (ch *channel) runList() (*Response, error) {
	session := ch.connection.session
	bindings := session.codebase.Names()
	out := make([]*DefResult, len(bindings))
	for idx, binding := range bindings {
		entry := &DefResult{
			Name: qualify(binding.Namespace, binding.Name),
			Hash: binding.Hash.String(),
		}
		if typ, err := session.codebase.TypeOf(ch.context, binding.Hash); err == nil {
			entry.Type = typ.Format().String()
		}
		out[idx] = entry
	}
	return ch.resultResponse(out)
}

func (ch *channel) runView() (*Response, error) {
	session := ch.connection.session
	target := ch.request.Name
	if target == "" {
		target = "#" + ch.request.Hash
	}
	hash, err := session.resolveTarget(target)
	if err != nil {
		return nil, err
	}
	def, err := session.codebase.Lookup(hash)
	if err != nil {
		return nil, err
	}
	source := ""
	if def.Kind == KindType {
		source = def.Type.Format().String()
	} else {
		source = def.Tree.Format().String()
	}
	return ch.resultResponse(&ViewResult{
		Hash:   def.Hash.String(),
		Kind:   def.Kind.String(),
		Source: source,
	})
}

func (ch *channel) runDefinition() (*Response, error) {
	session := ch.connection.session
	target := ch.request.Name
	if target == "" {
		target = "#" + ch.request.Hash
	}
	hash, err := session.resolveTarget(target)
	if err != nil {
		return nil, err
	}
	deps := session.codebase.Dependencies(hash)
	out := make([]*DefResult, len(deps))
	for idx, dep := range deps {
		entry := &DefResult{Hash: dep.String()}
		if names := session.codebase.NamesOf(dep); len(names) > 0 {
			entry.Name = names[0].String()
		}
		out[idx] = entry
	}
	return ch.resultResponse(out)
}

func (ch *channel) runEval() (*Response, error) {
	session := ch.connection.session
	result, err := session.Add(ch.context, ch.request.Input)
	if err != nil {
		return nil, err
	}
	return ch.resultResponse(outcomesToWire(result.Outcomes))
}

func (ch *channel) runUpdate() (*Response, error) {
	session := ch.connection.session
	result, err := session.Update(ch.context)
	if err != nil {
		return nil, err
	}
	out := &UpdateOpResult{Edits: len(result.Edits)}
	for _, step := range result.Steps {
		wireStep := &UpdateStepResult{OldHash: step.OldHash.String()}
		if step.Err != nil {
			wireStep.Error = step.Err.Error()
		} else {
			wireStep.NewHash = step.NewHash.String()
			for _, qn := range step.Names {
				wireStep.Names = append(wireStep.Names, qn.String())
			}
		}
		out.Steps = append(out.Steps, wireStep)
	}
	return ch.resultResponse(out)
}

func (ch *channel) runHistory() (*Response, error) {
	session := ch.connection.session
	if ch.request.Name != "" {
		hist := session.codebase.History(session.Namespace(), ch.request.Name)
		out := make([]string, len(hist))
		for idx, hash := range hist {
			out[idx] = hash.String()
		}
		return ch.resultResponse(out)
	}
	entries := session.Entries()
	if ch.request.Limit > 0 && len(entries) > ch.request.Limit {
		entries = entries[len(entries)-ch.request.Limit:]
	}
	out := make([]*DefResult, len(entries))
	for idx, entry := range entries {
		out[idx] = &DefResult{Name: entry.Name, Hash: entry.Hash.String()}
	}
	return ch.resultResponse(out)
}

func (ch *channel) runFind() (*Response, error) {
	session := ch.connection.session
	text, err := session.cmdFind(ch.request.Input)
	if err != nil {
		return nil, err
	}
	return ch.resultResponse(map[string]string{"matches": text})
}

func (ch *channel) runReferences() (*Response, error) {
	session := ch.connection.session
	hash, err := session.resolveTarget(ch.request.Name)
	if err != nil {
		return nil, err
	}
	dependents := session.codebase.Dependents(hash)
	out := make([]*DefResult, len(dependents))
	for idx, dependent := range dependents {
		entry := &DefResult{Hash: dependent.String()}
		if names := session.codebase.NamesOf(dependent); len(names) > 0 {
			entry.Name = names[0].String()
		}
		out[idx] = entry
	}
	return ch.resultResponse(out)
}

func outcomesToWire(outcomes []*AddOutcome) []*DefResult {
	out := make([]*DefResult, len(outcomes))
	for idx, outcome := range outcomes {
		entry := &DefResult{
			Name: outcome.Name,
			Hash: outcome.Hash.String(),
		}
		if outcome.Type != nil {
			entry.Type = outcome.Type.Format().String()
		}
		if outcome.Value != nil {
			if raw, err := lang.MarshalValueJSON(outcome.Value); err == nil {
				entry.Value = raw
			}
		}
		if outcome.Replaced != nil {
			entry.Replaced = outcome.Replaced.String()
		}
		out[idx] = entry
	}
	return out
}

func (ch *channel) resultResponse(payload interface{}) (*Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Response{
		ID:     ch.request.ID,
		Type:   ResultResponse,
		Result: raw,
	}, nil
}

func (ch *channel) writeError(err error) {
	errStr := err.Error()
	ch.connection.send(&Response{
		ID:    ch.request.ID,
		Type:  ErrorResponse,
		Error: &errStr,
	})
}
