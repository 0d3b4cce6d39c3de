// Package corevm is the middle and back end of a whole-program compiler
// and bytecode virtual machine for a small statically-typed,
// expression-oriented language: lowering from a resolved external AST
// (corevm/ast) into a stack-discipline core IR (corevm/coreir), bytecode
// generation with register allocation and stack-frame analysis
// (corevm/codegen), a peephole/dead-code optimizer (corevm/optimize),
// and the linker plus register+stack interpreter (corevm/vm).
//
// The stages compose as a single synchronous pipeline:
//
//	core, errs := lower.Lower(tree)
//	prog, errs := codegen.Generate(core, startLabelID)
//	optimize.Optimize(prog)
//	exe, errs := vm.Link(prog.ToVM(), "_main")
//	vm.New(exe, vm.Options{}).RunProgram()
//
// The lexer, parser, name resolver and type checker that produce the
// input tree are external collaborators; ast.Builder stands in for them.
package corevm
