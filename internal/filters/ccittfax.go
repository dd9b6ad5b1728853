package filters

import (
	"bytes"
	"fmt"

	"golang.org/x/image/ccitt"
)

// faxParams are the CCITTFaxDecode parameters with their PDF defaults.
type faxParams struct {
	k         int
	columns   int
	rows      int
	byteAlign bool
	blackIs1  bool
}

func newFaxParams(params Params) faxParams {
	return faxParams{
		k:         intParam(params, "K", 0),
		columns:   intParam(params, "Columns", 1728),
		rows:      intParam(params, "Rows", 0),
		byteAlign: boolParam(params, "EncodedByteAlign", false),
		blackIs1:  boolParam(params, "BlackIs1", false),
	}
}

// subFormat maps K to a ccitt sub-format. Mixed one- and two-dimensional
// Group 3 coding (K > 0) has no decoder.
func (f faxParams) subFormat() (ccitt.SubFormat, error) {
	switch {
	case f.k < 0:
		return ccitt.Group4, nil
	case f.k == 0:
		return ccitt.Group3, nil
	}
	return 0, fmt.Errorf("%w: CCITTFaxDecode with K=%d", ErrUnsupported, f.k)
}

// CCITTFaxDecode decodes Group 3 or Group 4 fax data into packed 1-bit rows.
// Recognised parameters are K, Columns, Rows, EncodedByteAlign and BlackIs1.
// Without Rows the height is found from the data.
func CCITTFaxDecode(data []byte, params Params) ([]byte, error) {
	return ccittFaxDecode(data, params, 0)
}

func ccittFaxDecode(data []byte, params Params, limit int64) ([]byte, error) {
	f := newFaxParams(params)
	sf, err := f.subFormat()
	if err != nil {
		return nil, err
	}
	if f.columns <= 0 {
		return nil, fmt.Errorf("CCITTFax: invalid Columns %d", f.columns)
	}
	rows := f.rows
	if rows <= 0 {
		rows = ccitt.AutoDetectHeight
	}

	r := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, sf, f.columns, rows,
		&ccitt.Options{Align: f.byteAlign, Invert: f.blackIs1})
	return readAllLimited(r, limit)
}
