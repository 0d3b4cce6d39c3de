// Package cerr defines the compile-time error sum type shared by the
// lowerer, bytecode generator and linker.
//
// Compilation never recovers mid-stage: each stage accumulates
// *CompileError values and unwinds, leaving partial results to the
// caller to discard.
package cerr

import "fmt"

// Kind identifies which pipeline stage raised an error.
type Kind uint8

const (
	Lower Kind = iota
	Codegen
	Link
)

func (k Kind) String() string {
	switch k {
	case Lower:
		return "lower"
	case Codegen:
		return "codegen"
	case Link:
		return "link"
	default:
		return "unknown"
	}
}

// CompileError is returned by any pipeline stage that cannot produce a
// valid result. There is no partial-result recovery: callers unwind the
// current stage entirely.
type CompileError struct {
	Kind Kind
	// Node, when >= 0, is the node id (external AST or core IR, depending
	// on Kind) that triggered the failure.
	Node int
	Msg  string
}

func (e *CompileError) Error() string {
	if e.Node >= 0 {
		return fmt.Sprintf("%s error at node %d: %s", e.Kind, e.Node, e.Msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
}

func Lowerf(node int, format string, args ...any) *CompileError {
	return &CompileError{Kind: Lower, Node: node, Msg: fmt.Sprintf(format, args...)}
}

func Codegenf(node int, format string, args ...any) *CompileError {
	return &CompileError{Kind: Codegen, Node: node, Msg: fmt.Sprintf(format, args...)}
}

func Linkf(format string, args ...any) *CompileError {
	return &CompileError{Kind: Link, Node: -1, Msg: fmt.Sprintf(format, args...)}
}
