package record

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned by Decode for blobs that are not a usable record.
var ErrMalformed = errors.New("malformed session record")

// Encode serialises the record into its persisted JSON layout.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil record")
	}
	if r.SessionWindowMs <= 0 {
		return nil, errors.New("record session window must be > 0")
	}
	return json.Marshal(r)
}

// Decode parses a persisted record. Anything that does not carry a valid
// principal and a positive window is reported as ErrMalformed.
func Decode(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, ErrMalformed
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !r.Principal.Valid() {
		return nil, fmt.Errorf("%w: missing access token", ErrMalformed)
	}
	if r.SessionWindowMs <= 0 || r.ExpiresAtMs <= 0 {
		return nil, fmt.Errorf("%w: missing expiry", ErrMalformed)
	}

	return &r, nil
}
