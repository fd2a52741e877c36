package jsonutil

import (
	"errors"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var jsonConfig = jsoniter.ConfigCompatibleWithStandardLibrary

// Unmarshal unmarshals data into v. Errors are shortened to the reason reported by the decoder,
// dropping the buffer dump jsoniter appends, so they stay readable when surfaced to publishers.
func Unmarshal(data []byte, v interface{}) error {
	if err := jsonConfig.Unmarshal(data, v); err != nil {
		return &UnmarshalError{msg: tryExtractErrorMessage(err)}
	}
	return nil
}

// Marshal marshals v with the same settings as the standard library.
func Marshal(v interface{}) ([]byte, error) {
	return jsonConfig.Marshal(v)
}

// UnmarshalError is returned by Unmarshal.
type UnmarshalError struct {
	msg string
}

func (e *UnmarshalError) Error() string {
	return e.msg
}

// IsUnmarshalError reports whether err came from Unmarshal.
func IsUnmarshalError(err error) bool {
	var unmarshalErr *UnmarshalError
	return errors.As(err, &unmarshalErr)
}

// tryExtractErrorMessage keeps the part of a jsoniter message before ", error found in #"
// and strips the leading "Type.Field: " decoder path.
func tryExtractErrorMessage(err error) string {
	msg := err.Error()

	if i := strings.Index(msg, ", error found in #"); i > 0 {
		msg = msg[:i]
	}

	if i := strings.Index(msg, ": "); i > 0 {
		path := msg[:i]
		if !strings.ContainsAny(path, " ") {
			msg = msg[i+2:]
		}
	}

	return "cannot unmarshal " + msg
}
