package vibe

import (
	"fmt"
	"strings"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
)

type NotFound struct {
	Hash lang.Hash
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("no definition with hash #%s", e.Hash.Short())
}

type UnboundName struct {
	Namespace string
	Name      string
}

func (e *UnboundName) Error() string {
	return fmt.Sprintf("name not bound: %s", qualify(e.Namespace, e.Name))
}

type AmbiguousPrefix struct {
	Prefix  string
	Matches []lang.Hash
}

func (e *AmbiguousPrefix) Error() string {
	shorts := make([]string, len(e.Matches))
	for idx, h := range e.Matches {
		shorts[idx] = "#" + h.Short()
	}
	return fmt.Sprintf(
		"ambiguous hash prefix #%s: matches %s", e.Prefix, strings.Join(shorts, ", "),
	)
}

type NoSuchPrefix struct {
	Prefix string
}

func (e *NoSuchPrefix) Error() string {
	return fmt.Sprintf("no definition with hash prefix #%s", e.Prefix)
}

// DependencyCycle means a derived computation reached its own hash
// again. Stored definitions form a DAG outside of recursive groups, so
// this indicates a corrupted store rather than bad user input.
type DependencyCycle struct {
	Hash lang.Hash
}

func (e *DependencyCycle) Error() string {
	return fmt.Sprintf("dependency cycle through #%s", e.Hash.Short())
}

type notAValue struct {
	Hash lang.Hash
}

func (e *notAValue) Error() string {
	return fmt.Sprintf("#%s is a type declaration, not a value", e.Hash.Short())
}

type typeCheckFailure struct {
	Hash lang.Hash
	Err  error
}

func (e *typeCheckFailure) Error() string {
	return fmt.Sprintf("type check failed for #%s: %s", e.Hash.Short(), e.Err.Error())
}

// propagationFailure marks one dependent that could not be carried
// along during an update. The rest of the update proceeds without it.
type propagationFailure struct {
	OldHash lang.Hash
	Err     error
}

func (e *propagationFailure) Error() string {
	return fmt.Sprintf("could not update dependent of #%s: %s", e.OldHash.Short(), e.Err.Error())
}

type parseError struct {
	error error
}

func (e *parseError) Error() string {
	return fmt.Sprintf("parse error: %s", e.error.Error())
}

func qualify(namespace string, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "/" + name
}
