// Package frontend reads and writes programs as documents: a declaration
// tree whose types, expressions and simple statements are spelled in P4
// syntax. Documents are encoded as YAML or msgpack.
package frontend

// Document is the serialized form of a program.
type Document struct {
	Decls []Decl `yaml:"decls" msgpack:"decls"`
}

// Decl holds exactly one declaration.
type Decl struct {
	Header   *Record   `yaml:"header,omitempty" msgpack:"header,omitempty"`
	Struct   *Record   `yaml:"struct,omitempty" msgpack:"struct,omitempty"`
	Extern   *Extern   `yaml:"extern,omitempty" msgpack:"extern,omitempty"`
	Package  *Package  `yaml:"package,omitempty" msgpack:"package,omitempty"`
	Parser   *Parser   `yaml:"parser,omitempty" msgpack:"parser,omitempty"`
	Control  *Control  `yaml:"control,omitempty" msgpack:"control,omitempty"`
	Action   *Action   `yaml:"action,omitempty" msgpack:"action,omitempty"`
	Table    *Table    `yaml:"table,omitempty" msgpack:"table,omitempty"`
	Var      *Var      `yaml:"var,omitempty" msgpack:"var,omitempty"`
	Const    *Const    `yaml:"const,omitempty" msgpack:"const,omitempty"`
	Instance *Instance `yaml:"instance,omitempty" msgpack:"instance,omitempty"`
}

type Record struct {
	Name   string  `yaml:"name" msgpack:"name"`
	Fields []Field `yaml:"fields" msgpack:"fields"`
}

type Field struct {
	Name string `yaml:"name" msgpack:"name"`
	Type string `yaml:"type" msgpack:"type"`
}

type Extern struct {
	Name    string   `yaml:"name" msgpack:"name"`
	Methods []Method `yaml:"methods,omitempty" msgpack:"methods,omitempty"`
}

type Method struct {
	Name   string  `yaml:"name" msgpack:"name"`
	Params []Param `yaml:"params,omitempty" msgpack:"params,omitempty"`
}

type Package struct {
	Name   string         `yaml:"name" msgpack:"name"`
	Params []PackageParam `yaml:"params" msgpack:"params"`
}

// PackageParam is a package slot; Kind is parser or control.
type PackageParam struct {
	Name string `yaml:"name" msgpack:"name"`
	Kind string `yaml:"kind" msgpack:"kind"`
}

// Param is a parameter; Dir is in, out, inout or empty.
type Param struct {
	Name string `yaml:"name" msgpack:"name"`
	Dir  string `yaml:"dir,omitempty" msgpack:"dir,omitempty"`
	Type string `yaml:"type" msgpack:"type"`
}

type Parser struct {
	Name   string  `yaml:"name" msgpack:"name"`
	Params []Param `yaml:"params,omitempty" msgpack:"params,omitempty"`
	Locals []Decl  `yaml:"locals,omitempty" msgpack:"locals,omitempty"`
	States []State `yaml:"states" msgpack:"states"`
}

// State transitions with either Goto or Select; neither means reject.
type State struct {
	Name   string  `yaml:"name" msgpack:"name"`
	Body   []Stmt  `yaml:"body,omitempty" msgpack:"body,omitempty"`
	Goto   string  `yaml:"goto,omitempty" msgpack:"goto,omitempty"`
	Select *Select `yaml:"select,omitempty" msgpack:"select,omitempty"`
}

type Select struct {
	Keys  []string `yaml:"keys" msgpack:"keys"`
	Cases []Case   `yaml:"cases" msgpack:"cases"`
}

// Case keysets are default, a value, or value &&& mask.
type Case struct {
	Keysets []string `yaml:"keysets" msgpack:"keysets"`
	Next    string   `yaml:"next" msgpack:"next"`
}

type Control struct {
	Name   string  `yaml:"name" msgpack:"name"`
	Params []Param `yaml:"params,omitempty" msgpack:"params,omitempty"`
	Locals []Decl  `yaml:"locals,omitempty" msgpack:"locals,omitempty"`
	Body   []Stmt  `yaml:"body,omitempty" msgpack:"body,omitempty"`
}

type Action struct {
	Name   string  `yaml:"name" msgpack:"name"`
	Params []Param `yaml:"params,omitempty" msgpack:"params,omitempty"`
	Body   []Stmt  `yaml:"body,omitempty" msgpack:"body,omitempty"`
}

// Table actions and the default are action names with optional bound
// arguments: set_port(1).
type Table struct {
	Name    string   `yaml:"name" msgpack:"name"`
	Keys    []Key    `yaml:"keys,omitempty" msgpack:"keys,omitempty"`
	Actions []string `yaml:"actions" msgpack:"actions"`
	Default string   `yaml:"default,omitempty" msgpack:"default,omitempty"`
	Size    int      `yaml:"size,omitempty" msgpack:"size,omitempty"`
}

type Key struct {
	Expr  string `yaml:"expr" msgpack:"expr"`
	Match string `yaml:"match" msgpack:"match"`
}

type Var struct {
	Name string `yaml:"name" msgpack:"name"`
	Type string `yaml:"type" msgpack:"type"`
	Init string `yaml:"init,omitempty" msgpack:"init,omitempty"`
}

type Const struct {
	Name  string `yaml:"name" msgpack:"name"`
	Type  string `yaml:"type" msgpack:"type"`
	Value string `yaml:"value" msgpack:"value"`
}

// Instance arguments of the form T(...) construct a block.
type Instance struct {
	Name string   `yaml:"name" msgpack:"name"`
	Type string   `yaml:"type" msgpack:"type"`
	Args []string `yaml:"args,omitempty" msgpack:"args,omitempty"`
}

// Stmt holds one statement: Do is an assignment, a call, exit or return;
// If with Then and Else is a conditional; Var declares a variable; Block
// nests statements.
type Stmt struct {
	Do    string `yaml:"do,omitempty" msgpack:"do,omitempty"`
	If    string `yaml:"if,omitempty" msgpack:"if,omitempty"`
	Then  []Stmt `yaml:"then,omitempty" msgpack:"then,omitempty"`
	Else  []Stmt `yaml:"else,omitempty" msgpack:"else,omitempty"`
	Var   *Var   `yaml:"var,omitempty" msgpack:"var,omitempty"`
	Block []Stmt `yaml:"block,omitempty" msgpack:"block,omitempty"`
}
