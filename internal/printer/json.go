package printer

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
)

// Output formats accepted by the listing commands.
const (
	FormatDefault = "default"
	FormatJSONL   = "jsonl"
	FormatJSON    = "json"
)

// ValidateFormat checks an --output value.
func ValidateFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("invalid output format %q (must be one of %v)", format, allowed)
}

// JSONL writes items as line-delimited JSON, one object per line, for piping to jq.
func JSONL[T any](w io.Writer, items []T) error {
	for _, item := range items {
		data, err := sonic.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// JSON writes v as pretty-printed JSON.
func JSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
