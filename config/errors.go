package config

import "fmt"

// MalformedConfigError reports a plugin declaration or user override file
// that could not be parsed or validated. It always identifies the offending
// plugin (and hook, when known) so diagnostics point at the source.
type MalformedConfigError struct {
	Err    error
	Plugin string
	Hook   string
	Path   string
}

func (err *MalformedConfigError) Error() string {
	if err.Hook != "" {
		return fmt.Sprintf("malformed hook config for plugin %q hook %q at %s: %v", err.Plugin, err.Hook, err.Path, err.Err)
	}

	return fmt.Sprintf("malformed hook config for plugin %q at %s: %v", err.Plugin, err.Path, err.Err)
}

func (err *MalformedConfigError) Unwrap() error {
	return err.Err
}
