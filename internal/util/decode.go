package util

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/hookworks/hookrun/internal/errors"
)

// StrictDecode decodes an untyped JSON value (map[string]any) into a typed
// config struct, rejecting unknown keys. Hook config files are duck-typed on
// disk; decoding through here is what turns them into validated structs.
func StrictDecode(input any, output any) error {
	var metadata mapstructure.Metadata

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      output,
		Metadata:    &metadata,
		ErrorUnused: true,
		DecodeHook:  stringToBoolHook(),
	})
	if err != nil {
		return errors.New(err)
	}

	if err := decoder.Decode(input); err != nil {
		return errors.New(err)
	}

	return nil
}

// stringToBoolHook accepts "true"/"false" strings for bool fields. Some
// override files are written by shell scripts that quote everything.
func stringToBoolHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
			return data, nil
		}

		switch strings.ToLower(strings.TrimSpace(data.(string))) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return nil, fmt.Errorf("cannot decode %q as bool", data)
		}
	}
}
