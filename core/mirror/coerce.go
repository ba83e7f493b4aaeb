package mirror

import (
	"github.com/bytedance/sonic"
)

// canonicalJSON encodes lists & maps with sorted keys so a re-pulled document
// produces byte-identical column text.
var canonicalJSON = sonic.Config{
	SortMapKeys: true,
	EscapeHTML:  false,
}.Froze()

// Coerce flattens remote fields into column text.
// Null fields are omitted: the local column keeps its prior value or its default.
func Coerce(fields map[string]Value) map[string]string {
	cols := make(map[string]string, len(fields))
	for name, val := range fields {
		if text, ok := val.Text(); ok {
			cols[name] = text
		}
	}
	return cols
}
