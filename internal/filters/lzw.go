package filters

import (
	"bytes"
	"compress/lzw"
	"errors"
	"fmt"
	"io"

	tifflzw "golang.org/x/image/tiff/lzw"
)

// LZWDecode decompresses LZW data with 8-bit literals, MSB first.
//
// EarlyChange (default 1) selects when the code width grows. With 1 the
// width changes one code early, which is the variant TIFF uses; with 0 it
// is the classic variant also found in GIF. Predictors apply as for Flate.
func LZWDecode(data []byte, params Params) ([]byte, error) {
	return lzwDecode(data, params, 0)
}

func lzwDecode(data []byte, params Params, limit int64) ([]byte, error) {
	var r io.ReadCloser
	switch early := intParam(params, "EarlyChange", 1); early {
	case 1:
		r = tifflzw.NewReader(bytes.NewReader(data), tifflzw.MSB, 8)
	case 0:
		r = lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	default:
		return nil, fmt.Errorf("LZW: invalid EarlyChange %d", early)
	}
	defer r.Close()

	out, err := readAllLimited(r, limit)
	if err != nil {
		// A missing end-of-data code still leaves usable output.
		if !errors.Is(err, io.ErrUnexpectedEOF) || len(out) == 0 {
			return nil, fmt.Errorf("LZW decompression failed: %w", err)
		}
	}
	return unpredict(out, params)
}
