package wire

import (
	"bytes"
	"encoding/gob"

	"github.com/cuemby/kvdb/pkg/errs"
)

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errs.Internal("wire: encode frame: %v", err)
	}
	return buf.Bytes(), nil
}

func decodeGob(raw []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(v); err != nil {
		return errs.Internal("wire: decode frame: %v", err)
	}
	return nil
}
