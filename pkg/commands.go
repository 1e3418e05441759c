package vibe

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
	"github.com/mizchi/vibe-lang-sub001/pkg/parse"
)

// RunCommand executes one line of shell input against the session and
// returns the text to display. Anything that is not a recognized
// command is treated as language input and added to the codebase.
func (s *Session) RunCommand(ctx context.Context, line string) (string, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", nil
	}
	fields := strings.Fields(trimmed)
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0]))

	switch fields[0] {
	case "ls":
		return s.cmdLs(ctx)
	case "name":
		if len(fields) != 3 {
			return "", fmt.Errorf("usage: name <hash-prefix> <name>")
		}
		return s.cmdName(fields[1], fields[2])
	case "view":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: view <name|#hash-prefix>")
		}
		return s.cmdView(fields[1])
	case "definition":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: definition <name|#hash-prefix>")
		}
		return s.cmdDefinition(fields[1])
	case "find", "search":
		if rest == "" {
			return "", fmt.Errorf("usage: %s <query>", fields[0])
		}
		return s.cmdFind(rest)
	case "history":
		return s.cmdHistory(rest)
	case "update":
		return s.cmdUpdate(ctx)
	case "hover", "type-of":
		if rest == "" {
			return "", fmt.Errorf("usage: %s <expr>", fields[0])
		}
		return s.cmdTypeOf(ctx, rest)
	case "references":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: references <name|#hash-prefix>")
		}
		return s.cmdReferences(fields[1])
	case "edits":
		return s.cmdEdits()
	case "reset":
		n := s.Reset()
		return fmt.Sprintf("dropped %d pending edit(s)", n), nil
	default:
		return s.cmdAdd(ctx, trimmed)
	}
}

func (s *Session) cmdAdd(ctx context.Context, input string) (string, error) {
	result, err := s.Add(ctx, input)
	if err != nil {
		return "", err
	}
	var lines []string
	for _, outcome := range result.Outcomes {
		lines = append(lines, renderOutcome(outcome))
	}
	return strings.Join(lines, "\n"), nil
}

func renderOutcome(outcome *AddOutcome) string {
	typStr := "?"
	if outcome.Type != nil {
		typStr = outcome.Type.Format().String()
	}
	if outcome.Name == "" {
		if outcome.Value != nil {
			return fmt.Sprintf("%s : %s", outcome.Value.Format().String(), typStr)
		}
		return fmt.Sprintf("#%s : %s", outcome.Hash.Short(), typStr)
	}
	out := fmt.Sprintf("%s : %s = #%s", outcome.Name, typStr, outcome.Hash.Short())
	if outcome.Replaced != nil {
		out += fmt.Sprintf(" (was #%s; run `update` to propagate)", outcome.Replaced.Short())
	}
	return out
}

func (s *Session) cmdName(prefix string, name string) (string, error) {
	outcome, err := s.BindName(strings.TrimPrefix(prefix, "#"), name)
	if err != nil {
		return "", err
	}
	out := fmt.Sprintf("%s = #%s", name, outcome.Hash.Short())
	if outcome.Replaced != nil {
		out += fmt.Sprintf(" (was #%s)", outcome.Replaced.Short())
	}
	return out, nil
}

func (s *Session) cmdLs(ctx context.Context) (string, error) {
	bindings := s.codebase.Names()
	if len(bindings) == 0 {
		return "no names bound", nil
	}
	var lines []string
	for _, binding := range bindings {
		typStr := "?"
		if typ, err := s.codebase.TypeOf(ctx, binding.Hash); err == nil {
			typStr = typ.Format().String()
		}
		lines = append(lines, fmt.Sprintf(
			"%s : %s = #%s",
			qualify(binding.Namespace, binding.Name), typStr, binding.Hash.Short(),
		))
	}
	return strings.Join(lines, "\n"), nil
}

// resolveTarget turns a `name` or `#hash-prefix` argument into a hash.
func (s *Session) resolveTarget(arg string) (lang.Hash, error) {
	if strings.HasPrefix(arg, "#") {
		return s.codebase.ResolvePrefix(arg[1:])
	}
	return s.codebase.Resolve(s.Namespace(), arg)
}

func (s *Session) cmdView(arg string) (string, error) {
	hash, err := s.resolveTarget(arg)
	if err != nil {
		return "", err
	}
	def, err := s.codebase.Lookup(hash)
	if err != nil {
		return "", err
	}
	return renderDefinition(def), nil
}

func renderDefinition(def *Definition) string {
	switch def.Kind {
	case KindType:
		return fmt.Sprintf("#%s = type %s", def.Hash.Short(), def.Type.Format().String())
	case KindGroup:
		return fmt.Sprintf(
			"#%s = %s (member %d of recursive group #%s)",
			def.Hash.Short(), def.Tree.Format().String(),
			def.GroupIndex, def.GroupDigest.Short(),
		)
	default:
		return fmt.Sprintf("#%s = %s", def.Hash.Short(), def.Tree.Format().String())
	}
}

func (s *Session) cmdFind(query string) (string, error) {
	var lines []string
	for _, binding := range s.codebase.Names() {
		def, err := s.codebase.Lookup(binding.Hash)
		if err != nil {
			continue
		}
		var body string
		if def.Kind == KindType {
			body = def.Type.Format().String()
		} else {
			body = def.Tree.Format().String()
		}
		if strings.Contains(binding.Name, query) || strings.Contains(body, query) {
			lines = append(lines, fmt.Sprintf(
				"%s = #%s",
				qualify(binding.Namespace, binding.Name), binding.Hash.Short(),
			))
		}
	}
	if len(lines) == 0 {
		return fmt.Sprintf("nothing matches %#v", query), nil
	}
	return strings.Join(lines, "\n"), nil
}

// cmdHistory with no argument lists the session log; with a name, the
// name's prior bindings; with a number, the last n log entries.
func (s *Session) cmdHistory(arg string) (string, error) {
	if arg != "" {
		if n, err := strconv.Atoi(arg); err == nil {
			return s.renderSessionLog(n), nil
		}
		hist := s.codebase.History(s.Namespace(), arg)
		if len(hist) == 0 {
			return fmt.Sprintf("no prior bindings for %s", arg), nil
		}
		lines := make([]string, len(hist))
		for idx, hash := range hist {
			lines[idx] = fmt.Sprintf("%d ago: #%s", idx+1, hash.Short())
		}
		return strings.Join(lines, "\n"), nil
	}
	return s.renderSessionLog(0), nil
}

func (s *Session) renderSessionLog(n int) string {
	entries := s.Entries()
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	if len(entries) == 0 {
		return "empty session"
	}
	lines := make([]string, len(entries))
	for idx, entry := range entries {
		name := entry.Name
		if name == "" {
			name = "_"
		}
		lines[idx] = fmt.Sprintf("%d: %s -> #%s", entry.Index, name, entry.Hash.Short())
	}
	return strings.Join(lines, "\n")
}

func (s *Session) cmdUpdate(ctx context.Context) (string, error) {
	result, err := s.Update(ctx)
	if err != nil {
		return "", err
	}
	if len(result.Edits) == 0 {
		return "nothing to update", nil
	}
	var lines []string
	for _, step := range result.Steps {
		if step.Err != nil {
			lines = append(lines, fmt.Sprintf("#%s: %s", step.OldHash.Short(), step.Err.Error()))
			continue
		}
		names := make([]string, len(step.Names))
		for idx, qn := range step.Names {
			names[idx] = qn.String()
		}
		lines = append(lines, fmt.Sprintf(
			"#%s -> #%s (%s)",
			step.OldHash.Short(), step.NewHash.Short(), strings.Join(names, ", "),
		))
	}
	header := fmt.Sprintf("propagated %d edit(s), rebuilt %d dependent(s)", len(result.Edits), len(result.Steps))
	if len(lines) == 0 {
		return header, nil
	}
	return header + "\n" + strings.Join(lines, "\n"), nil
}

// cmdTypeOf type checks an expression without storing it.
func (s *Session) cmdTypeOf(ctx context.Context, input string) (string, error) {
	parsed, err := parse.ParseExpr(input)
	if err != nil {
		return "", &parseError{error: err}
	}
	expr, err := parsed.ToExpr(s.codebase.ResolvePrefix)
	if err != nil {
		return "", err
	}
	canonical, err := lang.Canonicalize(expr, s.resolver(map[string]lang.Hash{}, nil))
	if err != nil {
		return "", err
	}
	typ, err := lang.Check(ctx, canonical, s.codebase.refTypes)
	if err != nil {
		return "", err
	}
	return typ.Format().String(), nil
}

func (s *Session) cmdReferences(arg string) (string, error) {
	hash, err := s.resolveTarget(arg)
	if err != nil {
		return "", err
	}
	dependents := s.codebase.Dependents(hash)
	if len(dependents) == 0 {
		return fmt.Sprintf("nothing references #%s", hash.Short()), nil
	}
	lines := make([]string, len(dependents))
	for idx, dependent := range dependents {
		names := s.codebase.NamesOf(dependent)
		nameStrs := make([]string, len(names))
		for i, qn := range names {
			nameStrs[i] = qn.String()
		}
		line := "#" + dependent.Short()
		if len(nameStrs) > 0 {
			line += " (" + strings.Join(nameStrs, ", ") + ")"
		}
		lines[idx] = line
	}
	return strings.Join(lines, "\n"), nil
}

// cmdDefinition lists what a definition directly references, the
// mirror of `references`.
func (s *Session) cmdDefinition(arg string) (string, error) {
	hash, err := s.resolveTarget(arg)
	if err != nil {
		return "", err
	}
	deps := s.codebase.Dependencies(hash)
	if len(deps) == 0 {
		return fmt.Sprintf("#%s references nothing", hash.Short()), nil
	}
	lines := make([]string, len(deps))
	for idx, dep := range deps {
		names := s.codebase.NamesOf(dep)
		nameStrs := make([]string, len(names))
		for i, qn := range names {
			nameStrs[i] = qn.String()
		}
		line := "#" + dep.Short()
		if len(nameStrs) > 0 {
			line += " (" + strings.Join(nameStrs, ", ") + ")"
		}
		lines[idx] = line
	}
	return strings.Join(lines, "\n"), nil
}

func (s *Session) cmdEdits() (string, error) {
	edits := s.Edits()
	if len(edits) == 0 {
		return "no pending edits", nil
	}
	lines := make([]string, len(edits))
	for idx, edit := range edits {
		lines[idx] = fmt.Sprintf(
			"%s: #%s -> #%s",
			qualify(edit.Namespace, edit.Name), edit.OldHash.Short(), edit.NewHash.Short(),
		)
	}
	return strings.Join(lines, "\n"), nil
}
