package filters

import (
	"fmt"
)

// predictor describes the sample layout a Predictor works on.
type predictor struct {
	kind    int
	colors  int
	bpc     int
	columns int
}

func newPredictor(params Params) predictor {
	return predictor{
		kind:    intParam(params, "Predictor", 1),
		colors:  intParam(params, "Colors", 1),
		bpc:     intParam(params, "BitsPerComponent", 8),
		columns: intParam(params, "Columns", 1),
	}
}

// rowBytes is the length of one row of samples, without a tag byte.
func (p predictor) rowBytes() int {
	return (p.columns*p.colors*p.bpc + 7) / 8
}

// pixelBytes is the distance to the corresponding byte of the previous
// pixel, never less than one.
func (p predictor) pixelBytes() int {
	return (p.colors*p.bpc + 7) / 8
}

func (p predictor) validate() error {
	switch p.bpc {
	case 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("predictor: invalid BitsPerComponent %d", p.bpc)
	}
	if p.colors <= 0 || p.columns <= 0 {
		return fmt.Errorf("predictor: invalid geometry %d colors x %d columns", p.colors, p.columns)
	}
	return nil
}

// unpredict reverses the Predictor in params. Predictor 1 or no predictor
// returns data unchanged.
func unpredict(data []byte, params Params) ([]byte, error) {
	p := newPredictor(params)
	switch {
	case p.kind == 1:
		return data, nil
	case p.kind == 2:
		return p.tiff(data)
	case p.kind >= 10 && p.kind <= 15:
		return p.png(data)
	}
	return nil, fmt.Errorf("predictor: unsupported Predictor %d", p.kind)
}

// tiff undoes TIFF Predictor 2 for 8-bit samples in place.
func (p predictor) tiff(data []byte) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.bpc != 8 {
		return nil, fmt.Errorf("predictor: TIFF Predictor 2 needs 8 bits per component, got %d", p.bpc)
	}
	row := p.rowBytes()
	if len(data)%row != 0 {
		return nil, fmt.Errorf("predictor: %d bytes is not a whole number of %d-byte rows", len(data), row)
	}

	out := append([]byte(nil), data...)
	for start := 0; start < len(out); start += row {
		r := out[start : start+row]
		for i := p.colors; i < len(r); i++ {
			r[i] += r[i-p.colors]
		}
	}
	return out, nil
}

// png undoes PNG prediction. Every row carries its own tag byte, so the
// Predictor value 10-15 only announces that tags are present. A trailing
// partial row is dropped.
func (p predictor) png(data []byte) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	row := p.rowBytes()
	bpp := p.pixelBytes()
	rows := len(data) / (row + 1)

	out := make([]byte, rows*row)
	prev := make([]byte, row)
	for n := 0; n < rows; n++ {
		src := data[n*(row+1):]
		cur := out[n*row : (n+1)*row]
		copy(cur, src[1:row+1])
		if err := unfilterRow(src[0], cur, prev, bpp); err != nil {
			return nil, fmt.Errorf("predictor: row %d: %w", n, err)
		}
		prev = cur
	}
	return out, nil
}

// unfilterRow reverses one PNG row filter in place. prev is the decoded row
// above, all zero for the first row.
func unfilterRow(tag byte, cur, prev []byte, bpp int) error {
	switch tag {
	case 0:
	case 1:
		for i := bpp; i < len(cur); i++ {
			cur[i] += cur[i-bpp]
		}
	case 2:
		for i := range cur {
			cur[i] += prev[i]
		}
	case 3:
		for i := range cur {
			var left int
			if i >= bpp {
				left = int(cur[i-bpp])
			}
			cur[i] += byte((left + int(prev[i])) / 2)
		}
	case 4:
		for i := range cur {
			var left, upLeft byte
			if i >= bpp {
				left, upLeft = cur[i-bpp], prev[i-bpp]
			}
			cur[i] += paeth(left, prev[i], upLeft)
		}
	default:
		return fmt.Errorf("unknown PNG filter type %d", tag)
	}
	return nil
}

// paeth picks whichever of left, up and upper-left is nearest to
// left+up-upLeft, preferring them in that order on ties.
func paeth(left, up, upLeft byte) byte {
	p := int(left) + int(up) - int(upLeft)
	dl, du, dul := absInt(p-int(left)), absInt(p-int(up)), absInt(p-int(upLeft))
	if dl <= du && dl <= dul {
		return left
	}
	if du <= dul {
		return up
	}
	return upLeft
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
