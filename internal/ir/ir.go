package ir

import (
	"fmt"
	"math/big"
)

// Node is implemented by every IR node. Nodes are immutable once they are
// part of a Program: passes build new nodes and share unchanged subtrees.
type Node interface {
	irNode()
}

// Program is the whole source program at one point of the pipeline.
type Program struct {
	Decls []Decl
}

// Decl is a named declaration.
type Decl interface {
	Node
	DeclName() string
}

// Find returns the top-level declaration with the given name.
func (p *Program) Find(name string) Decl {
	if p == nil {
		return nil
	}
	for _, d := range p.Decls {
		if d.DeclName() == name {
			return d
		}
	}
	return nil
}

// WithDecls returns a copy of p holding decls.
func (p *Program) WithDecls(decls []Decl) *Program {
	return &Program{Decls: decls}
}

// Direction is the direction of a parameter.
type Direction int

const (
	DirNone Direction = iota
	DirIn
	DirOut
	DirInOut
)

func (d Direction) String() string {
	switch d {
	case DirIn:
		return "in"
	case DirOut:
		return "out"
	case DirInOut:
		return "inout"
	default:
		return ""
	}
}

// Field is a header or struct member.
type Field struct {
	Name string
	Type Type
}

// HeaderType declares a header layout.
type HeaderType struct {
	Name   string
	Fields []*Field
}

// StructType declares a struct layout.
type StructType struct {
	Name   string
	Fields []*Field
}

// Method is an extern method signature. Methods return nothing.
type Method struct {
	Name   string
	Params []*Param
}

// ExternType declares an extern object type.
type ExternType struct {
	Name    string
	Methods []*Method
}

// BlockKind distinguishes parser and control blocks.
type BlockKind int

const (
	ParserBlock BlockKind = iota
	ControlBlock
)

func (k BlockKind) String() string {
	if k == ParserBlock {
		return "parser"
	}
	return "control"
}

// PackageParam is one slot of a package type.
type PackageParam struct {
	Name string
	Kind BlockKind
}

// PackageType declares a composition of parsers and controls.
type PackageType struct {
	Name   string
	Params []*PackageParam
}

// Param is a parser, control, action or method parameter.
type Param struct {
	Name string
	Dir  Direction
	Type Type
}

// Parser declares a parser block.
type Parser struct {
	Name   string
	Params []*Param
	Locals []Decl
	States []*ParserState
}

// ParserState is one state of a parser state machine.
type ParserState struct {
	Name       string
	Components []Stmt
	Transition Transition
}

// State returns the named state, or nil.
func (p *Parser) State(name string) *ParserState {
	for _, s := range p.States {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Transition ends a parser state.
type Transition interface {
	Node
	isTransition()
}

// Goto transitions unconditionally.
type Goto struct {
	State string
}

// Select transitions on the value of Keys.
type Select struct {
	Keys  []Expr
	Cases []*SelectCase
}

// SelectCase maps keysets to a next state. Keysets has one entry per key,
// or a single default keyset that matches any number of keys.
type SelectCase struct {
	Keysets []*Keyset
	State   string
}

// IsDefault reports whether c is the single default keyset.
func (c *SelectCase) IsDefault() bool {
	return len(c.Keysets) == 1 && c.Keysets[0].Default
}

// Keyset matches one select key. A default keyset matches everything.
type Keyset struct {
	Value   Expr
	Mask    Expr
	Default bool
}

// Control declares a control block (ingress, egress or deparser).
type Control struct {
	Name   string
	Params []*Param
	Locals []Decl
	Body   *BlockStmt
}

// Action declares an action, either at top level or inside a control.
type Action struct {
	Name   string
	Params []*Param
	Body   *BlockStmt
}

// KeyElement is one table key.
type KeyElement struct {
	Expr      Expr
	MatchKind string
}

// ActionRef names an action inside a table, optionally with bound args.
type ActionRef struct {
	Action *PathExpr
	Args   []Expr
}

// Table declares a match-action table.
type Table struct {
	Name    string
	Keys    []*KeyElement
	Actions []*ActionRef
	Default *ActionRef
	Size    int
}

// Variable declares a local variable.
type Variable struct {
	Name string
	Type Type
	Init Expr
}

// ConstDecl declares a named compile-time constant.
type ConstDecl struct {
	Name  string
	Type  Type
	Value Expr
}

// Instantiation creates an instance of a parser, control, extern or package.
type Instantiation struct {
	Name string
	Type string
	Args []Expr
}

func (*Program) irNode()       {}
func (*Field) irNode()         {}
func (*HeaderType) irNode()    {}
func (*StructType) irNode()    {}
func (*Method) irNode()        {}
func (*ExternType) irNode()    {}
func (*PackageParam) irNode()  {}
func (*PackageType) irNode()   {}
func (*Param) irNode()         {}
func (*Parser) irNode()        {}
func (*ParserState) irNode()   {}
func (*Goto) irNode()          {}
func (*Select) irNode()        {}
func (*SelectCase) irNode()    {}
func (*Keyset) irNode()        {}
func (*Control) irNode()       {}
func (*Action) irNode()        {}
func (*KeyElement) irNode()    {}
func (*ActionRef) irNode()     {}
func (*Table) irNode()         {}
func (*Variable) irNode()      {}
func (*ConstDecl) irNode()     {}
func (*Instantiation) irNode() {}

func (*Goto) isTransition()   {}
func (*Select) isTransition() {}

func (d *HeaderType) DeclName() string    { return d.Name }
func (d *StructType) DeclName() string    { return d.Name }
func (d *ExternType) DeclName() string    { return d.Name }
func (d *PackageType) DeclName() string   { return d.Name }
func (d *Param) DeclName() string         { return d.Name }
func (d *Parser) DeclName() string        { return d.Name }
func (d *ParserState) DeclName() string   { return d.Name }
func (d *Control) DeclName() string       { return d.Name }
func (d *Action) DeclName() string        { return d.Name }
func (d *Table) DeclName() string         { return d.Name }
func (d *Variable) DeclName() string      { return d.Name }
func (d *ConstDecl) DeclName() string     { return d.Name }
func (d *Instantiation) DeclName() string { return d.Name }

// LookupField returns the named field of a header or struct, or nil.
func LookupField(fields []*Field, name string) *Field {
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Type is an IR type.
type Type interface {
	Node
	String() string
	isType()
}

// BitsType is bit<W> or int<W>.
type BitsType struct {
	Width  int
	Signed bool
}

// BoolType is bool.
type BoolType struct{}

// InfIntType is the arbitrary-precision integer type of untyped literals.
type InfIntType struct{}

// VarbitType is varbit<W>.
type VarbitType struct {
	Width int
}

// NamedType refers to a declared header, struct or extern type.
type NamedType struct {
	Name string
}

// StackType is a header stack T[N].
type StackType struct {
	Elem Type
	Size int
}

func (*BitsType) irNode()   {}
func (*BoolType) irNode()   {}
func (*InfIntType) irNode() {}
func (*VarbitType) irNode() {}
func (*NamedType) irNode()  {}
func (*StackType) irNode()  {}

func (*BitsType) isType()   {}
func (*BoolType) isType()   {}
func (*InfIntType) isType() {}
func (*VarbitType) isType() {}
func (*NamedType) isType()  {}
func (*StackType) isType()  {}

func (t *BitsType) String() string {
	if t.Signed {
		return fmt.Sprintf("int<%d>", t.Width)
	}
	return fmt.Sprintf("bit<%d>", t.Width)
}
func (*BoolType) String() string     { return "bool" }
func (*InfIntType) String() string   { return "int" }
func (t *VarbitType) String() string { return fmt.Sprintf("varbit<%d>", t.Width) }
func (t *NamedType) String() string  { return t.Name }
func (t *StackType) String() string  { return fmt.Sprintf("%s[%d]", t.Elem, t.Size) }

// Bits returns an unsigned bit<width> type.
func Bits(width int) *BitsType { return &BitsType{Width: width} }

// SameType reports structural type equality.
func SameType(a, b Type) bool {
	switch x := a.(type) {
	case *BitsType:
		y, ok := b.(*BitsType)
		return ok && x.Width == y.Width && x.Signed == y.Signed
	case *BoolType:
		_, ok := b.(*BoolType)
		return ok
	case *InfIntType:
		_, ok := b.(*InfIntType)
		return ok
	case *VarbitType:
		y, ok := b.(*VarbitType)
		return ok && x.Width == y.Width
	case *NamedType:
		y, ok := b.(*NamedType)
		return ok && x.Name == y.Name
	case *StackType:
		y, ok := b.(*StackType)
		return ok && x.Size == y.Size && SameType(x.Elem, y.Elem)
	default:
		return a == nil && b == nil
	}
}

// Expr is an expression.
type Expr interface {
	Node
	isExpr()
}

// Constant is an integer literal. Type is *BitsType or *InfIntType.
type Constant struct {
	Value *big.Int
	Type  Type
}

// BoolLit is true or false.
type BoolLit struct {
	Value bool
}

// PathExpr names a declaration.
type PathExpr struct {
	Name string
}

// Member selects a field or method of Expr.
type Member struct {
	Expr Expr
	Name string
}

// BinOp enumerates binary operators.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
	Shl
	Shr
	BitAnd
	BitOr
	BitXor
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	LogAnd
	LogOr
	Concat
)

var binOpSymbols = [...]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", Mod: "%", Shl: "<<", Shr: ">>",
	BitAnd: "&", BitOr: "|", BitXor: "^", Eq: "==", Ne: "!=", Lt: "<",
	Le: "<=", Gt: ">", Ge: ">=", LogAnd: "&&", LogOr: "||", Concat: "++",
}

func (op BinOp) String() string {
	if int(op) < len(binOpSymbols) {
		return binOpSymbols[op]
	}
	return "?"
}

// IsComparison reports whether op yields a bool from two values.
func (op BinOp) IsComparison() bool {
	return op >= Eq && op <= Ge
}

// IsLogical reports whether op combines two bools.
func (op BinOp) IsLogical() bool {
	return op == LogAnd || op == LogOr
}

// Binary is a binary operation.
type Binary struct {
	Op    BinOp
	Left  Expr
	Right Expr
}

// UnOp enumerates unary operators.
type UnOp int

const (
	Neg UnOp = iota
	Cmpl
	LogNot
)

func (op UnOp) String() string {
	switch op {
	case Neg:
		return "-"
	case Cmpl:
		return "~"
	case LogNot:
		return "!"
	default:
		return "?"
	}
}

// Unary is a unary operation.
type Unary struct {
	Op   UnOp
	Expr Expr
}

// Cast converts Expr to Type.
type Cast struct {
	Type Type
	Expr Expr
}

// Slice extracts bits Hi..Lo (inclusive) of Expr.
type Slice struct {
	Expr Expr
	Hi   int
	Lo   int
}

// MethodCall calls an action, a table/control apply or an extern method.
type MethodCall struct {
	Method Expr
	Args   []Expr
}

// ConstructorCall instantiates an anonymous block, as in `MyParser()`.
type ConstructorCall struct {
	Type string
	Args []Expr
}

func (*Constant) irNode()        {}
func (*BoolLit) irNode()         {}
func (*PathExpr) irNode()        {}
func (*Member) irNode()          {}
func (*Binary) irNode()          {}
func (*Unary) irNode()           {}
func (*Cast) irNode()            {}
func (*Slice) irNode()           {}
func (*MethodCall) irNode()      {}
func (*ConstructorCall) irNode() {}

func (*Constant) isExpr()        {}
func (*BoolLit) isExpr()         {}
func (*PathExpr) isExpr()        {}
func (*Member) isExpr()          {}
func (*Binary) isExpr()          {}
func (*Unary) isExpr()           {}
func (*Cast) isExpr()            {}
func (*Slice) isExpr()           {}
func (*MethodCall) isExpr()      {}
func (*ConstructorCall) isExpr() {}

// NewConstant returns a literal of the given type. A nil type yields an
// arbitrary-precision literal.
func NewConstant(v int64, t Type) *Constant {
	if t == nil {
		t = &InfIntType{}
	}
	return &Constant{Value: big.NewInt(v), Type: t}
}

// Path is shorthand for &PathExpr{Name: name}.
func Path(name string) *PathExpr { return &PathExpr{Name: name} }

// Stmt is a statement.
type Stmt interface {
	Node
	isStmt()
}

// AssignStmt is `Left = Right;`.
type AssignStmt struct {
	Left  Expr
	Right Expr
}

// CallStmt evaluates a call for its effect.
type CallStmt struct {
	Call *MethodCall
}

// IfStmt is a conditional. Else may be nil.
type IfStmt struct {
	Cond Expr
	Then Stmt
	Else Stmt
}

// BlockStmt is a braced statement list.
type BlockStmt struct {
	Stmts []Stmt
}

// ReturnStmt leaves the enclosing action or control.
type ReturnStmt struct{}

// ExitStmt stops all control processing for the packet.
type ExitStmt struct{}

// EmptyStmt is `;`.
type EmptyStmt struct{}

// VarDeclStmt declares a local inside a statement list.
type VarDeclStmt struct {
	Var *Variable
}

func (*AssignStmt) irNode()  {}
func (*CallStmt) irNode()    {}
func (*IfStmt) irNode()      {}
func (*BlockStmt) irNode()   {}
func (*ReturnStmt) irNode()  {}
func (*ExitStmt) irNode()    {}
func (*EmptyStmt) irNode()   {}
func (*VarDeclStmt) irNode() {}

func (*AssignStmt) isStmt()  {}
func (*CallStmt) isStmt()    {}
func (*IfStmt) isStmt()      {}
func (*BlockStmt) isStmt()   {}
func (*ReturnStmt) isStmt()  {}
func (*ExitStmt) isStmt()    {}
func (*EmptyStmt) isStmt()   {}
func (*VarDeclStmt) isStmt() {}

// Block builds a block statement.
func Block(stmts ...Stmt) *BlockStmt { return &BlockStmt{Stmts: stmts} }
