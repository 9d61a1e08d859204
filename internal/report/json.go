package report

import (
	"encoding/json"
	"fmt"
)

// WriteJSON writes v as indented JSON to path.
func WriteJSON(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling raw output: %w", err)
	}
	return writeFile(path, string(data)+"\n")
}
