package query

import (
	"bytes"
	"encoding/json"
	"fmt"

	pkgerrors "github.com/angelmondragon/analytics-dashboard/pkg/errors"
)

// Row maps a metric or dimension id to the raw cell value returned upstream.
// Numbers decode as json.Number so precision survives until charting.
type Row map[string]any

// DecodeRows decodes the data array of an analytics response. Anything other
// than an array of objects (or null) is a structural failure.
func DecodeRows(raw json.RawMessage) ([]Row, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Row{}, nil
	}
	if trimmed[0] != '[' {
		return nil, pkgerrors.New(pkgerrors.CodeTransform, "analytics data is not a list of rows")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var items []json.RawMessage
	if err := dec.Decode(&items); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransform, err, "decode analytics rows")
	}

	rows := make([]Row, 0, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return nil, pkgerrors.New(pkgerrors.CodeTransform, fmt.Sprintf("analytics row %d is not an object", i))
		}
		rowDec := json.NewDecoder(bytes.NewReader(item))
		rowDec.UseNumber()
		row := Row{}
		if err := rowDec.Decode(&row); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTransform, err, fmt.Sprintf("decode analytics row %d", i))
		}
		rows = append(rows, row)
	}
	return rows, nil
}
