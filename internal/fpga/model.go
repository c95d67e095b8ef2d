package fpga

import (
	"strings"
	"unicode"

	"p4fpga/internal/ir"
)

// StructKind tells where a struct of the model comes from.
type StructKind string

const (
	KindHeader   StructKind = "header"
	KindStruct   StructKind = "struct"
	KindRequest  StructKind = "request"
	KindResponse StructKind = "response"
	KindMetadata StructKind = "metadata"
)

// Model is the hardware view of one program. Every name an artifact
// prints is computed here once.
type Model struct {
	Name     string     `yaml:"name"`
	Structs  []*Struct  `yaml:"structs"`
	Enums    []*Enum    `yaml:"enums,omitempty"`
	Parser   *Parser    `yaml:"parser"`
	Controls []*Control `yaml:"controls"`
	Deparser *Deparser  `yaml:"deparser"`
}

// Struct is a packed record. Source names the program declaration or table
// it was derived from.
type Struct struct {
	Name   string     `yaml:"name"`
	Source string     `yaml:"source,omitempty"`
	Kind   StructKind `yaml:"kind"`
	Fields []Field    `yaml:"fields"`
}

// Width returns the packed width of s.
func (s *Struct) Width() int {
	total := 0
	for _, f := range s.Fields {
		total += f.Width
	}
	return total
}

// Field is one struct member. Type is set for nested structs and enums;
// plain bit fields only carry a width.
type Field struct {
	Name  string `yaml:"name"`
	Width int    `yaml:"width"`
	Type  string `yaml:"type,omitempty"`
}

// Enum is an enumeration of action labels.
type Enum struct {
	Name   string   `yaml:"name"`
	Width  int      `yaml:"width"`
	Labels []string `yaml:"labels"`
}

// Parser is the parse state machine, states in breadth-first order from
// start.
type Parser struct {
	Name   string   `yaml:"name"`
	States []*State `yaml:"states"`
}

// State is one parse state. A state either goes to Next or selects on Keys.
// Meta lists the metadata fields copied out of the headers it extracts.
type State struct {
	Name         string    `yaml:"name"`
	Enum         string    `yaml:"enum"`
	Extracts     []Extract `yaml:"extracts,omitempty"`
	Instructions []string  `yaml:"instructions,omitempty"`
	Meta         []Key     `yaml:"meta,omitempty"`
	Keys         []Key     `yaml:"select,omitempty"`
	Cases        []Case    `yaml:"cases,omitempty"`
	Next         string    `yaml:"next,omitempty"`
}

// Extract is one header pulled from the packet. Valid names the one-bit
// metadata field set when it is extracted.
type Extract struct {
	Header string `yaml:"header"`
	Type   string `yaml:"type"`
	Width  int    `yaml:"width"`
	Valid  string `yaml:"valid"`
}

// Key is a value a state or table matches on. Field is its name in the
// metadata struct.
type Key struct {
	Expr      string `yaml:"expr"`
	Field     string `yaml:"field"`
	Width     int    `yaml:"width"`
	MatchKind string `yaml:"match,omitempty"`
}

// Case is one select arm; Values line up with the state's keys.
type Case struct {
	Values []Match `yaml:"values"`
	Next   string  `yaml:"next"`
}

// Match is a keyset. Value and Mask are hexadecimal without prefix.
type Match struct {
	Value   string `yaml:"value,omitempty"`
	Mask    string `yaml:"mask,omitempty"`
	Default bool   `yaml:"default,omitempty"`
}

// Control is one match-action pipeline stage.
type Control struct {
	Name    string    `yaml:"name"`
	Type    string    `yaml:"type"`
	Tables  []*Table  `yaml:"tables,omitempty"`
	Actions []*Action `yaml:"actions,omitempty"`
	Entry   string    `yaml:"entry"`
	Blocks  []*Block  `yaml:"blocks"`
	Deps    []Dep     `yaml:"deps,omitempty"`
}

// Table is a match table with its request and response records.
type Table struct {
	Name        string   `yaml:"name"`
	Block       string   `yaml:"block"`
	MatchType   string   `yaml:"match_type"`
	Depth       int      `yaml:"depth"`
	Keys        []Key    `yaml:"keys,omitempty"`
	Actions     []string `yaml:"actions"`
	Default     string   `yaml:"default,omitempty"`
	DefaultArgs []string `yaml:"default_args,omitempty"`
	Request     string   `yaml:"request,omitempty"`
	Response    string   `yaml:"response"`
	ActionEnum  string   `yaml:"action_enum"`
}

// Action is a specialized action body with the fields it touches.
type Action struct {
	Name   string   `yaml:"name"`
	Enum   string   `yaml:"enum"`
	Params []Param  `yaml:"params,omitempty"`
	Body   []string `yaml:"body,omitempty"`
	Reads  []string `yaml:"reads,omitempty"`
	Writes []string `yaml:"writes,omitempty"`
}

// Param is an action parameter supplied by the control plane.
type Param struct {
	Name  string `yaml:"name"`
	Width int    `yaml:"width"`
}

// BlockKind classifies basic blocks of a control.
type BlockKind string

const (
	BlockTable  BlockKind = "table"
	BlockAction BlockKind = "action"
	BlockCond   BlockKind = "cond"
	BlockStmts  BlockKind = "stmts"
	BlockExit   BlockKind = "exit"
)

// Block is a node of the apply sequence.
type Block struct {
	Name  string    `yaml:"name"`
	Kind  BlockKind `yaml:"kind"`
	Label string    `yaml:"label,omitempty"`
	Lines []string  `yaml:"lines,omitempty"`
	Succ  []Edge    `yaml:"succ,omitempty"`
}

// Edge leads to the next block; conditional edges are labelled true or
// false.
type Edge struct {
	To    string `yaml:"to"`
	Label string `yaml:"label,omitempty"`
}

// Dep records that table To must run after table From because of Field.
// Kind is match when From writes a key of To and action when it writes a
// field To's actions read.
type Dep struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Kind  string `yaml:"kind"`
	Field string `yaml:"field"`
}

// Deparser lists the headers emitted, in order.
type Deparser struct {
	Name   string       `yaml:"name"`
	States []*EmitState `yaml:"states"`
}

// EmitState writes one header back to the packet when the metadata field
// Valid is set, and is skipped otherwise.
type EmitState struct {
	Name   string `yaml:"name"`
	Enum   string `yaml:"enum"`
	Header string `yaml:"header"`
	Type   string `yaml:"type"`
	Width  int    `yaml:"width"`
	Valid  string `yaml:"valid"`
}

// Struct returns the struct named name, or nil.
func (m *Model) Struct(name string) *Struct {
	for _, s := range m.Structs {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// TypeName is the hardware type name of a program type or derived record:
// the name with an upper-case initial and a single _t suffix.
func TypeName(name string) string {
	return upperFirst(ident(strings.TrimSuffix(name, "_t"))) + "_t"
}

// CamelCase joins the underscore- or dot-separated parts of name with
// upper-case initials.
func CamelCase(name string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '.' || r == '$'
	}) {
		b.WriteString(upperFirst(ident(part)))
	}
	return b.String()
}

// StateEnum names the enum label of a parse state.
func StateEnum(state string) string {
	return "State" + CamelCase(state)
}

// BlockName names the basic block of a table or action.
func BlockName(name string) string {
	return "bb_" + name
}

// DeparseState names the deparse state that mirrors a parse state.
func DeparseState(state string) string {
	return "de" + state
}

// FieldName turns a program identifier into a record field name.
func FieldName(name string) string {
	return lowerFirst(ident(name))
}

// ValidField names the metadata field holding the validity of a header.
func ValidField(header string) string {
	return KeyField(header + "." + ir.MethodIsValid)
}

// KeyField names the metadata field of a key path: the path without its
// leading parameter, joined with underscores.
func KeyField(path string) string {
	parts := strings.Split(path, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return FieldName(strings.Join(parts, "_"))
}

func ident(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r) && r < unicode.MaxASCII:
			b.WriteRune(r)
		case unicode.IsDigit(r):
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
