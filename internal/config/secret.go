package config

import (
	"fmt"
	"log/slog"
)

// redacted replaces a secret wherever it would be printed.
const redacted = "[redacted]"

// SecretString holds a credential such as the weather API key. It prints,
// logs and marshals as "[redacted]"; Unmask is the only way to read it.
type SecretString string

func (s SecretString) String() string { return redacted }

// GoString keeps %#v from printing the value.
func (s SecretString) GoString() string { return redacted }

// Format covers every fmt verb, including %s, %q and %x, which would
// otherwise format the underlying string.
func (s SecretString) Format(f fmt.State, verb rune) {
	if verb == 'q' {
		fmt.Fprintf(f, "%q", redacted)
		return
	}
	fmt.Fprint(f, redacted)
}

// LogValue implements slog.LogValuer.
func (s SecretString) LogValue() slog.Value { return slog.StringValue(redacted) }

func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// MarshalText covers text encoders (slog's TextHandler, YAML).
func (s SecretString) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Unmask returns the plaintext value.
func (s SecretString) Unmask() string { return string(s) }

// IsSet reports whether a value was configured.
func (s SecretString) IsSet() bool { return s != "" }
