// Package jsonwrapper contains a strict JSON decoder.
package jsonwrapper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
)

// differences with respect to the standard package:
// - unknown fields are rejected
// - existing slices are discarded instead of being reused, see https://github.com/golang/go/issues/21092
// - slices cannot be set to null
// - data after the first value is rejected

func fieldKey(f reflect.StructField) string {
	key := f.Tag.Get("json")
	if key == "" || key == "-" {
		return ""
	}
	return strings.Split(key, ",")[0]
}

func joinPath(path string, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func resetSlices(v reflect.Value, raw any, path string) error {
	switch v.Kind() {
	case reflect.Slice:
		if raw == nil {
			if path == "" {
				return fmt.Errorf("cannot set slice to nil")
			}
			return fmt.Errorf("cannot set slice '%s' to nil", path)
		}

		if !v.IsNil() {
			v.Set(reflect.Zero(v.Type()))
		}

	case reflect.Struct:
		rawMap, ok := raw.(map[string]any)
		if !ok {
			return nil
		}

		vType := v.Type()
		for i := range v.NumField() {
			key := fieldKey(vType.Field(i))
			if key == "" {
				continue
			}

			rawVal, ok := rawMap[key]
			if !ok {
				continue
			}

			err := resetSlices(v.Field(i), rawVal, joinPath(path, key))
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// Unmarshal decodes JSON.
func Unmarshal(buf []byte, dest any) error {
	var raw any
	err := json.Unmarshal(buf, &raw)
	if err != nil {
		return err
	}

	err = resetSlices(reflect.ValueOf(dest).Elem(), raw, "")
	if err != nil {
		return err
	}

	d := json.NewDecoder(bytes.NewReader(buf))
	d.DisallowUnknownFields()
	return d.Decode(dest)
}

// Decode decodes JSON from a reader that must contain a single value.
func Decode(r io.Reader, dest any) error {
	d := json.NewDecoder(r)

	var raw json.RawMessage
	err := d.Decode(&raw)
	if err != nil {
		return err
	}

	_, err = d.Token()
	if !errors.Is(err, io.EOF) {
		return fmt.Errorf("unexpected data after JSON value")
	}

	return Unmarshal(raw, dest)
}
