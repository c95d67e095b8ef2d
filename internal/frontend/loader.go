package frontend

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"p4fpga/internal/diag"
	"p4fpga/internal/ir"
)

// Document encodings.
const (
	FormatYAML    = "yaml"
	FormatMsgpack = "msgpack"
	// FormatText is the P4-like listing of ir.Dump; it can be written but
	// not read.
	FormatText = "text"
)

// FormatOf picks the encoding of a document from its file extension.
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".msgpack", ".mpk":
		return FormatMsgpack, nil
	}
	return "", fmt.Errorf("unrecognized document extension %q (want .yaml, .yml, .msgpack or .mpk)", filepath.Ext(path))
}

// Load reads the program document at path. Malformed elements are
// reported; the returned error then counts them.
func Load(path string, reporter *diag.Reporter) (*ir.Program, error) {
	if path == "" {
		return nil, fmt.Errorf("no source file was provided")
	}
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := Decode(data, format, reporter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

// Decode converts an encoded document into a program.
func Decode(data []byte, format string, reporter *diag.Reporter) (*ir.Program, error) {
	var doc Document
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatMsgpack:
		if err := msgpack.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode msgpack: %w", err)
		}
	default:
		return nil, fmt.Errorf("cannot decode format %q", format)
	}
	return ToProgram(&doc, reporter)
}

// ToProgram converts a decoded document into a program.
func ToProgram(doc *Document, reporter *diag.Reporter) (*ir.Program, error) {
	c := &converter{reporter: reporter}
	prog := c.program(doc)
	if c.errCount > 0 {
		return nil, fmt.Errorf("document has %d malformed element(s)", c.errCount)
	}
	return prog, nil
}

// Encode writes prog in the given format.
func Encode(w io.Writer, prog *ir.Program, format string) error {
	switch format {
	case FormatText:
		ir.Dump(prog, w)
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(FromProgram(prog)); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatMsgpack:
		data, err := msgpack.Marshal(FromProgram(prog))
		if err != nil {
			return fmt.Errorf("encode msgpack: %w", err)
		}
		_, err = w.Write(data)
		return err
	}
	return fmt.Errorf("cannot encode format %q", format)
}
