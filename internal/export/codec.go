package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Formats lists the supported encodings
var Formats = []string{"json", "yaml", "msgpack", "cbor"}

// cborMode uses core deterministic encoding so equal snapshots produce
// identical bytes
var cborMode cbor.EncMode

func init() {
	var err error
	cborMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("export: CBOR encoder initialization failed: " + err.Error())
	}
}

// Encode writes v to w in the given format
func Encode(w io.Writer, v any, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "msgpack":
		enc := msgpack.NewEncoder(w)
		enc.SetSortMapKeys(true)
		return enc.Encode(v)
	case "cbor":
		return cborMode.NewEncoder(w).Encode(v)
	default:
		return fmt.Errorf("unsupported format %q (expected one of %s)", format, strings.Join(Formats, ", "))
	}
}

// IsBinary reports whether a format should not be written to a terminal
func IsBinary(format string) bool {
	switch strings.ToLower(format) {
	case "msgpack", "cbor":
		return true
	}
	return false
}
