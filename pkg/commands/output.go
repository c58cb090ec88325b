package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
)

const (
	formatYAML = "yaml"
	formatJSON = "json"
)

// writeOutput renders v in the requested format.
func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case formatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("%w: unknown output format %q (must be yaml or json)", apperrors.ErrInvalidConfig, format)
	}
}
