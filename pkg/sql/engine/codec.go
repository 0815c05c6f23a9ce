package engine

import (
	"bytes"
	"encoding/gob"

	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

// encodeTable/decodeTable and encodeRow/decodeRow serialize schemas and rows
// into Record values via encoding/gob, relying on DataValue's GobEncode/
// GobDecode to keep the wire format identical to DataValue's order-preserving
// byte encoding (pkg/sql/types).

func encodeTable(t *types.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t); err != nil {
		return nil, errs.Internal("encode table %q: %v", t.Name, err)
	}
	return buf.Bytes(), nil
}

func decodeTable(raw []byte) (*types.Table, error) {
	var t types.Table
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&t); err != nil {
		return nil, errs.Internal("decode table: %v", err)
	}
	return &t, nil
}

func encodeRow(row types.Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(row); err != nil {
		return nil, errs.Internal("encode row: %v", err)
	}
	return buf.Bytes(), nil
}

func decodeRow(raw []byte) (types.Row, error) {
	var row types.Row
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&row); err != nil {
		return nil, errs.Internal("decode row: %v", err)
	}
	return row, nil
}

// encodeIndexSet/decodeIndexSet serialize the set of primary-key values
// sharing one Indexed column's cell value (per-column index
// maintenance), kept as a flat slice since membership is checked explicitly
// with DataValue.Equal rather than relying on Go map semantics across gob
// round-trips.
func encodeIndexSet(values []types.DataValue) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(values); err != nil {
		return nil, errs.Internal("encode index set: %v", err)
	}
	return buf.Bytes(), nil
}

func decodeIndexSet(raw []byte) ([]types.DataValue, error) {
	if raw == nil {
		return nil, nil
	}
	var values []types.DataValue
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&values); err != nil {
		return nil, errs.Internal("decode index set: %v", err)
	}
	return values, nil
}
