package ast

// TypeID indexes into a Tree's Types table. Resolved by the (external)
// type checker; the core only ever reads sizes and shapes through it.
type TypeID int

const NoType TypeID = -1

// TypeKind is the closed set of resolved type shapes a Declaration or
// Function signature can carry. This is distinct from the Kind values
// TypeAtom..TypeIdentifierTuple, which tag the *syntax* the typechecker
// consumes to produce one of these; by lowering time only TypeKind
// values are consulted.
type TypeKind uint8

const (
	TypeKindAtom TypeKind = iota
	TypeKindTuple
	TypeKindFunction
	TypeKindArray
	TypeKindReference
	TypeKindSum
	TypeKindRecord
)

func (k TypeKind) String() string {
	switch k {
	case TypeKindAtom:
		return "atom"
	case TypeKindTuple:
		return "tuple"
	case TypeKindFunction:
		return "function"
	case TypeKindArray:
		return "array"
	case TypeKindReference:
		return "reference"
	case TypeKindSum:
		return "sum"
	case TypeKindRecord:
		return "record"
	default:
		return "?unknown-type-kind?"
	}
}

// Type is a resolved type: atoms carry a NumberType (IsNumber), or are
// the one-byte bool atom (IsBool), the address-sized "string" atom, or
// the zero-size unit atom, arrays carry an element type and a fixed
// length, tuples/records carry an ordered list of field types, sums
// carry an ordered list of variant (payload) types, references carry
// the referent type, and functions carry parameter/result types (used
// only to compute parameter/result byte sizes, never called through at this
// layer).
type Type struct {
	Kind TypeKind

	// TypeKindAtom
	Name       string
	NumberType NumberType
	IsNumber   bool
	IsBool     bool

	// TypeKindArray
	Elem   TypeID
	Length uint32

	// TypeKindTuple, TypeKindRecord, TypeKindSum
	Fields []TypeID

	// TypeKindReference
	Referent TypeID

	// TypeKindFunction
	Params  []TypeID
	Results []TypeID
}

// addressSize is the byte width of a pointer/address value on this
// machine. The wire format's CALL_UI64 and MV_REG_UI64 operands are
// 8 bytes wide, so references and string handles — both of which are
// addresses into the stack or executable — are sized to match.
const addressSize = 8

// SizeOf computes the frame byte size of the type at id; every frame
// slot's offset+size must fit within its function's frame size.
func SizeOf(types []Type, id TypeID) uint32 {
	if id < 0 || int(id) >= len(types) {
		// Statements (declarations, assignments, loops) carry no resolved
		// type; their net stack contribution is zero.
		return 0
	}
	t := types[id]
	switch t.Kind {
	case TypeKindAtom:
		switch {
		case t.IsNumber:
			return t.NumberType.Size()
		case t.IsBool:
			return 1
		case t.Name == "string":
			return addressSize
		default:
			return 0 // unit
		}
	case TypeKindReference:
		return addressSize
	case TypeKindArray:
		return t.Length * SizeOf(types, t.Elem)
	case TypeKindTuple, TypeKindRecord:
		var sum uint32
		for _, f := range t.Fields {
			sum += SizeOf(types, f)
		}
		return sum
	case TypeKindSum:
		var max uint32
		for _, f := range t.Fields {
			if sz := SizeOf(types, f); sz > max {
				max = sz
			}
		}
		return 1 + max // tag byte + widest variant payload
	case TypeKindFunction:
		return addressSize // function value is a code address
	default:
		return 0
	}
}
