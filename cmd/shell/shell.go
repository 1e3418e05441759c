package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/robertkrimen/isatty"

	vibe "github.com/mizchi/vibe-lang-sub001/pkg"
)

var url = flag.String("url", "", "URL of a vibe server to connect to; empty runs in-process")
var dataFile = flag.String("data-file", "", "data file for in-process mode; empty runs in memory")

func main() {
	// get cmdline flags
	flag.Parse()

	// check if is TTY
	isInputTty := isatty.Check(os.Stdin.Fd())

	if isInputTty {
		fmt.Println("vibe shell")
		fmt.Println("\\h for help")
	}

	// initialize readline
	prompt := ""
	if isInputTty {
		target := "mem"
		if *url != "" {
			target = *url
		} else if *dataFile != "" {
			target = *dataFile
		}
		prompt = fmt.Sprintf("%s> ", target)
	}
	l, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       "/tmp/.vibe-history",
		InterruptPrompt:   "^C",
		EOFPrompt:         "bye!",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()

	run := newRunner()
	defer run.close()

	for {
		line, readlineErr := l.Readline()
		if readlineErr != nil {
			fmt.Println("bye!")
			os.Exit(0)
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		if line == `\h` {
			printHelp()
			continue
		}
		if strings.TrimSpace(line) == "exit" {
			fmt.Println("bye!")
			os.Exit(0)
		}

		out, err := run.runLine(line)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		if out != "" {
			fmt.Println(out)
		}
	}
}

func printHelp() {
	fmt.Println(`<expr>                    evaluate an expression (and store it)
name = expr [; ...]       define (mutually recursive with ;)
type Name = <type>        declare a type
name <#hash> <name>       bind a name to a stored definition
ls                        list bound names
view <name|#hash>         show a definition
definition <name|#hash>   what a definition depends on
type-of <expr>            type of an expression
find <query>              search names and definitions
references <name|#hash>   what depends on a definition
history [name|n]          session log or a name's prior bindings
edits                     pending edits
update                    propagate pending edits to dependents
reset                     drop pending edits
exit                      quit`)
}

// runner dispatches lines either to an in-process session or to a
// remote server.
type runner struct {
	session  *vibe.Session
	codebase *vibe.Codebase
	client   *vibe.Client
}

func newRunner() *runner {
	if *url != "" {
		client, err := vibe.NewClient(*url)
		if err != nil {
			fmt.Println("couldn't connect:", err)
			os.Exit(1)
		}
		return &runner{client: client}
	}

	var codebase *vibe.Codebase
	if *dataFile != "" {
		cb, err := vibe.NewCodebase(*dataFile)
		if err != nil {
			fmt.Println("couldn't open data file:", err)
			os.Exit(1)
		}
		codebase = cb
	} else {
		codebase = vibe.NewMemCodebase()
	}
	return &runner{
		codebase: codebase,
		session:  codebase.NewSession(),
	}
}

func (r *runner) close() {
	if r.client != nil {
		r.client.Close()
	}
	if r.codebase != nil {
		r.codebase.Close()
	}
}

func (r *runner) runLine(line string) (string, error) {
	if r.session != nil {
		return r.session.RunCommand(context.Background(), line)
	}
	return r.runRemote(line)
}

// runRemote maps shell commands onto protocol requests.
func (r *runner) runRemote(line string) (string, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	var req *vibe.Request
	switch fields[0] {
	case "ls":
		req = &vibe.Request{Op: "list"}
	case "update":
		req = &vibe.Request{Op: "update"}
	case "edits", "reset":
		return "", fmt.Errorf("%s is only available in in-process mode", fields[0])
	case "name":
		if len(fields) != 3 {
			return "", fmt.Errorf("usage: name <hash-prefix> <name>")
		}
		req = &vibe.Request{Op: "name", Hash: strings.TrimPrefix(fields[1], "#"), Name: fields[2]}
	case "view", "definition":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: %s <name|#hash-prefix>", fields[0])
		}
		req = targetRequest(fields[0], fields[1])
	case "references":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: references <name|#hash-prefix>")
		}
		req = targetRequest("references", fields[1])
	case "type-of", "hover":
		req = &vibe.Request{Op: "type_of", Input: rest}
	case "find", "search":
		req = &vibe.Request{Op: "find", Input: rest}
	case "history":
		req = &vibe.Request{Op: "history", Name: rest}
	case "status":
		req = &vibe.Request{Op: "status"}
	default:
		req = &vibe.Request{Op: "add", Input: line}
	}

	raw, err := r.client.Query(req)
	if err != nil {
		return "", err
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw), nil
	}
	indented, _ := json.MarshalIndent(decoded, "", "  ")
	return string(indented), nil
}

func targetRequest(op string, target string) *vibe.Request {
	if strings.HasPrefix(target, "#") {
		return &vibe.Request{Op: op, Hash: target[1:]}
	}
	return &vibe.Request{Op: op, Name: target}
}
