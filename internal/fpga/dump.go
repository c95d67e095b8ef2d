package fpga

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Dump writes the model as YAML.
func Dump(m *Model, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("fpga: encode model: %w", err)
	}
	return enc.Close()
}
