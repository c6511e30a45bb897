// Package rowcodec encodes rows for byte-oriented key-value backends.
package rowcodec

import (
	"encoding/json"
	"fmt"

	"github.com/discochess/annotator/internal/store"
)

// Marshal encodes a row as a JSON object with one field per column.
func Marshal(row store.Row) ([]byte, error) {
	if err := row.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(row)
}

// Unmarshal decodes and validates a row. Any failure wraps store.ErrMalformedRecord.
func Unmarshal(data []byte) (store.Row, error) {
	row := store.EmptyRow()
	if err := json.Unmarshal(data, &row); err != nil {
		return store.Row{}, fmt.Errorf("%w: %v", store.ErrMalformedRecord, err)
	}
	if err := row.Validate(); err != nil {
		return store.Row{}, err
	}
	return row, nil
}
