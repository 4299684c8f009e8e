// Package codec encodes values in the formats clock snapshots are stored and
// exchanged in.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Format names an encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	CBOR Format = "cbor"
)

// Formats lists every supported format.
var Formats = []Format{JSON, YAML, CBOR}

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so equal values
// always encode to identical bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// ParseFormat returns the Format named by s, ignoring case. The empty string
// is JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return JSON, nil
	case JSON, YAML, CBOR:
		return f, nil
	case "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("codec: unknown format %q", s)
	}
}

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// Marshal encodes v in format f.
func Marshal(f Format, v any) ([]byte, error) {
	switch f {
	case JSON:
		return json.Marshal(v)
	case YAML:
		return yaml.Marshal(v)
	case CBOR:
		return encMode.Marshal(v)
	default:
		return nil, fmt.Errorf("codec: unknown format %q", f)
	}
}

// Unmarshal decodes data in format f into v.
func Unmarshal(f Format, data []byte, v any) error {
	switch f {
	case JSON:
		return json.Unmarshal(data, v)
	case YAML:
		return yaml.Unmarshal(data, v)
	case CBOR:
		return decMode.Unmarshal(data, v)
	default:
		return fmt.Errorf("codec: unknown format %q", f)
	}
}
