package lower

import (
	"corevm/ast"
	"corevm/coreir"
)

// lowerMatch: lower the subject onto the stack at a known stack label,
// then for each branch build a pattern test tree, JZ past the body on
// failure, lower the body, JMP to the shared after-label; finally
// deallocate the subject once every branch has been tried.
func (l *Lowerer) lowerMatch(n ast.NodeID) coreir.NodeID {
	node := l.src.Node(n)
	subject := node.Children[0]
	branches := node.Children[1:]

	subjectSize := ast.SizeOf(l.src.Types, l.src.Node(subject).TypeScope)
	subjectType := l.src.Node(subject).TypeScope

	stackLabelID := l.nextStackLabel()
	afterLabel := l.nextLabel()

	out := l.dst.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})
	var children []coreir.NodeID

	stackLbl := l.dst.Add(coreir.STACK_LABEL, coreir.NoNode, coreir.Data{LabelID: stackLabelID})
	children = append(children, stackLbl)

	subjectID := l.lowerExpr(subject)
	children = append(children, subjectID)

	for i, branch := range branches {
		branchNode := l.src.Node(branch)
		pattern, hasPattern := l.src.Patterns[branch]

		bindings := map[string]coreir.RelativeOffsetData{}
		var testID coreir.NodeID
		hasTest := false
		if hasPattern {
			testID, hasTest = lowerPatternTest(l, pattern, stackLabelID, subjectSize, subjectType, bindings)
		}

		falseLabel := l.nextLabel()

		l.patternScopes = append(l.patternScopes, bindings)

		if hasTest {
			children = append(children, testID)
			jz := l.dst.Add(coreir.JZ, coreir.NoNode, coreir.Data{LabelID: falseLabel})
			children = append(children, jz)
		}

		bodyID := l.lowerExpr(branchNode.Children[len(branchNode.Children)-1])
		children = append(children, bodyID)

		l.patternScopes = l.patternScopes[:len(l.patternScopes)-1]

		isLast := i == len(branches)-1
		if !isLast || hasTest {
			jmp := l.dst.Add(coreir.JMP, coreir.NoNode, coreir.Data{LabelID: afterLabel})
			children = append(children, jmp)
		}
		if hasTest {
			lbl := l.dst.Add(coreir.LABEL, coreir.NoNode, coreir.Data{LabelID: falseLabel})
			children = append(children, lbl)
		}
	}

	afterLbl := l.dst.Add(coreir.LABEL, coreir.NoNode, coreir.Data{LabelID: afterLabel})
	children = append(children, afterLbl)

	if subjectSize > 0 {
		dealloc := l.dst.Add(coreir.STACK_DEALLOC, coreir.NoNode, coreir.Data{Size: subjectSize})
		children = append(children, dealloc)
	}

	l.dst.SetChildren(out, children...)
	return out
}

// lowerPatternTest walks a pattern against the subject on the stack at
// stackLabelID, returning the boolean-producing node and whether one
// was produced at all (an Identifier pattern always matches and only
// contributes a binding). offset is the cumulative byte depth past the
// stack label through the end of the value this pattern is tested
// against; a read of s bytes at offset covers exactly the bytes pushed
// while the depth went from offset-s to offset.
func lowerPatternTest(l *Lowerer, p ast.Pattern, stackLabelID int, offset uint32, typeOf ast.TypeID, bindings map[string]coreir.RelativeOffsetData) (coreir.NodeID, bool) {
	switch p.Kind {
	case ast.PatternIdentifier:
		bindings[p.Name] = coreir.RelativeOffsetData{StackLabel: stackLabelID, Delta: int32(offset)}
		return coreir.NoNode, false

	case ast.PatternLiteralNumber:
		size := p.NumberType.Size()
		push := l.pushFromOffset(stackLabelID, offset, size)
		lit := l.dst.Add(coreir.NUMBER, coreir.NoNode, coreir.Data{Number: p.Number, NumberType: p.NumberType})
		eq := l.dst.Add(coreir.EQ, coreir.NoNode, coreir.Data{})
		l.dst.SetChildren(eq, push, lit)
		return eq, true

	case ast.PatternLiteralBool:
		push := l.pushFromOffset(stackLabelID, offset, 1)
		lit := l.dst.Add(coreir.BOOLEAN, coreir.NoNode, coreir.Data{Bool: p.Bool})
		eq := l.dst.Add(coreir.EQ, coreir.NoNode, coreir.Data{})
		l.dst.SetChildren(eq, push, lit)
		return eq, true

	case ast.PatternTuple:
		// Field 0 was pushed first, so it sits at the shallowest depths of
		// the value's region: walk the cursor up from the region's start
		// (offset minus the whole tuple's size), not down from its end.
		t := l.typeAt(typeOf)
		fields := make([]ast.TypeID, len(p.Elements))
		sizes := make([]uint32, len(p.Elements))
		var total uint32
		for i := range p.Elements {
			fields[i] = typeOf
			if t.Kind == ast.TypeKindTuple && i < len(t.Fields) {
				fields[i] = t.Fields[i]
			}
			sizes[i] = ast.SizeOf(l.src.Types, fields[i])
			total += sizes[i]
		}

		var combined coreir.NodeID
		has := false
		cursor := offset - total
		for i, elem := range p.Elements {
			cursor += sizes[i]
			sub, ok := lowerPatternTest(l, elem, stackLabelID, cursor, fields[i], bindings)
			if !ok {
				continue
			}
			if !has {
				combined, has = sub, true
				continue
			}
			and := l.dst.Add(coreir.AND, coreir.NoNode, coreir.Data{})
			l.dst.SetChildren(and, combined, sub)
			combined = and
		}
		return combined, has

	case ast.PatternConstructor:
		tagPush := l.pushFromOffset(stackLabelID, offset, 1)
		tagLit := l.dst.Add(coreir.NUMBER, coreir.NoNode, coreir.Data{Number: int64(p.VariantIndex), NumberType: ast.UI8})
		eq := l.dst.Add(coreir.EQ, coreir.NoNode, coreir.Data{})
		l.dst.SetChildren(eq, tagPush, tagLit)

		if p.Inner == nil {
			return eq, true
		}

		t := l.typeAt(typeOf)
		payloadType := typeOf
		if t.Kind == ast.TypeKindSum && p.VariantIndex < len(t.Fields) {
			payloadType = t.Fields[p.VariantIndex]
		}
		inner, ok := lowerPatternTest(l, *p.Inner, stackLabelID, offset-1, payloadType, bindings)
		if !ok {
			return eq, true
		}
		and := l.dst.Add(coreir.AND, coreir.NoNode, coreir.Data{})
		l.dst.SetChildren(and, eq, inner)
		return and, true

	default:
		return coreir.NoNode, false
	}
}

func (l *Lowerer) pushFromOffset(stackLabelID int, offset, size uint32) coreir.NodeID {
	rel := l.dst.Add(coreir.RELATIVE_OFFSET, coreir.NoNode, coreir.Data{
		Relative: coreir.RelativeOffsetData{StackLabel: stackLabelID, Delta: int32(offset)},
	})
	push := l.dst.Add(coreir.PUSH, coreir.NoNode, coreir.Data{Size: size})
	l.dst.SetChildren(push, rel)
	l.dst.SetSize(push, size)
	return push
}
