package output

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSONPrinter renders results as indented JSON, the machine-readable twin of
// the human printer. Tracker snapshots print with their wire field names, so
// scripted output matches what the retained topic carries.
type JSONPrinter struct{}

// Print writes v as indented JSON to stdout.
func (JSONPrinter) Print(v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(payload))
	return err
}
