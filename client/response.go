package client

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/adamwoolhether/httpmulti/client/assemble"
)

// Response is the immutable result of a completed request. Header names
// are lowercased and a repeated header keeps its last value.
type Response struct {
	*assemble.Response
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Path looks up a gjson path expression in a JSON body, e.g. "items.0.id".
func (r *Response) Path(expr string) gjson.Result {
	return gjson.GetBytes(r.Body, expr)
}

// Decode unmarshals a JSON body into v.
func (r *Response) Decode(v any, useNumber bool) error {
	d := json.NewDecoder(bytes.NewReader(r.Body))
	if useNumber {
		d.UseNumber()
	}

	if err := d.Decode(v); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}

	return nil
}
