package ir

// Names of the core library declarations every program may use.
const (
	PacketIn   = "packet_in"
	PacketOut  = "packet_out"
	MainName   = "main"
	Accept     = "accept"
	Reject     = "reject"
	StartState = "start"
)

// Builtin method names on headers, tables and blocks.
const (
	MethodExtract    = "extract"
	MethodEmit       = "emit"
	MethodApply      = "apply"
	MethodIsValid    = "isValid"
	MethodSetValid   = "setValid"
	MethodSetInvalid = "setInvalid"
)

// Match kinds understood by tables.
const (
	MatchExact   = "exact"
	MatchTernary = "ternary"
	MatchLPM     = "lpm"
)

// CoreLibrary returns the extern declarations implicitly visible to every
// program. extract and emit take one header argument of any header type.
func CoreLibrary() []Decl {
	return []Decl{
		&ExternType{
			Name: PacketIn,
			Methods: []*Method{{
				Name:   MethodExtract,
				Params: []*Param{{Name: "hdr", Dir: DirOut, Type: &NamedType{Name: "_"}}},
			}},
		},
		&ExternType{
			Name: PacketOut,
			Methods: []*Method{{
				Name:   MethodEmit,
				Params: []*Param{{Name: "hdr", Dir: DirIn, Type: &NamedType{Name: "_"}}},
			}},
		},
	}
}

// IsCoreExtern reports whether name is one of the packet externs.
func IsCoreExtern(name string) bool {
	return name == PacketIn || name == PacketOut
}
