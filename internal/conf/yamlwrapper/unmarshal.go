// Package yamlwrapper contains a YAML unmarshaler.
package yamlwrapper

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v2"

	"github.com/bluenviron/mediatrim/internal/conf/jsonwrapper"
)

// differences with respect to the standard package:
// - duplicate keys are rejected
// - keys must be strings
// - all differences of jsonwrapper are inherited

// stringKeys converts the maps returned by yaml.v2 into maps that can be encoded into JSON.
func stringKeys(v any) (any, error) {
	switch tv := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(tv))
		for k, el := range tv {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string keys are not supported (%v)", k)
			}

			conv, err := stringKeys(el)
			if err != nil {
				return nil, err
			}
			out[ks] = conv
		}
		return out, nil

	case []any:
		out := make([]any, len(tv))
		for i, el := range tv {
			conv, err := stringKeys(el)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	}

	return v, nil
}

// Unmarshal decodes YAML into dest, going through JSON
// in order to use the json tags and the unmarshalers of dest.
func Unmarshal(buf []byte, dest any) error {
	var generic any
	err := yaml.UnmarshalStrict(buf, &generic)
	if err != nil {
		return err
	}

	// an empty document is an empty map
	if generic == nil {
		generic = map[string]any{}
	}

	generic, err = stringKeys(generic)
	if err != nil {
		return err
	}

	enc, err := json.Marshal(generic)
	if err != nil {
		return err
	}

	return jsonwrapper.Unmarshal(enc, dest)
}
