package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const redacted = "[REDACTED]"

// Formatter is the interface for log formatters
type Formatter interface {
	Format(entry *LogEntry) ([]byte, error)
}

// LogEntry represents a single log entry
type LogEntry struct {
	Level     Level
	Message   string
	Fields    Fields
	Data      any
	Error     error
	Timestamp time.Time
	Caller    string
}

// Fields is a map of structured data
type Fields map[string]any

// sortedKeys keeps console output stable between runs
func (f Fields) sortedKeys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// redactor replaces configured sensitive field values.
type redactor map[string]struct{}

func newRedactor(keys []string) redactor {
	r := make(redactor, len(keys))
	for _, k := range keys {
		r[strings.ToLower(k)] = struct{}{}
	}
	return r
}

func (r redactor) apply(fields Fields) Fields {
	if len(fields) == 0 || len(r) == 0 {
		return fields
	}
	out := make(Fields, len(fields))
	for k, v := range fields {
		if _, hit := r[strings.ToLower(k)]; hit {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}

func formatTimestamp(t time.Time, format string) string {
	switch format {
	case "unix":
		return fmt.Sprintf("%d", t.Unix())
	case "unixmilli":
		return fmt.Sprintf("%d", t.UnixMilli())
	default:
		return t.Format(format)
	}
}

func prettyJSON(data any) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", data)
	}
	return string(bytes)
}
