package ffmpeg

import "fmt"

// ErrCodeConfigInvalid is the code carried by every ConfigError.
const ErrCodeConfigInvalid = "config_invalid"

// ConfigError reports an EncodeConfig field that cannot be compiled.
// It is returned before any process is started.
type ConfigError struct {
	Field   string
	Value   string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid encode config: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid encode config: %s %q: %s", e.Field, e.Value, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Code returns ErrCodeConfigInvalid.
func (e *ConfigError) Code() string {
	return ErrCodeConfigInvalid
}

func configErr(field, value, msg string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Message: msg}
}
