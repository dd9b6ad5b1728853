package filters

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// Params holds the decode parameters of one filter, taken from the stream's
// DecodeParms entry. Numbers arrive as int or float64, names as string.
type Params map[string]interface{}

// FlateDecode inflates zlib data and undoes any Predictor given in params.
func FlateDecode(data []byte, params Params) ([]byte, error) {
	return flateDecode(data, params, 0)
}

func flateDecode(data []byte, params Params, limit int64) ([]byte, error) {
	inflated, err := inflate(data, limit)
	if err != nil {
		return nil, err
	}
	return unpredict(inflated, params)
}

// inflate decompresses zlib data. Output cut short by a truncated stream is
// kept, since damaged files often lose the checksum.
func inflate(data []byte, limit int64) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("flate: %w", err)
	}
	defer zr.Close()

	out, err := readAllLimited(zr, limit)
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, io.ErrUnexpectedEOF) && len(out) > 0:
		return out, nil
	}
	return nil, fmt.Errorf("flate: %w", err)
}
