package filters

import (
	"fmt"
)

// ASCIIHexDecode decodes ASCIIHexDecode data: pairs of hex digits with
// whitespace ignored, ended by '>' or the end of data. A final odd digit is
// padded with 0.
func ASCIIHexDecode(data []byte) ([]byte, error) {
	return asciiHexDecode(data, nil, 0)
}

func asciiHexDecode(data []byte, _ Params, limit int64) ([]byte, error) {
	out := newOutput(limit)
	var hi byte
	odd := false

	for i, c := range data {
		if isWhitespace(c) {
			continue
		}
		if c == '>' {
			break
		}
		v, ok := hexValue(c)
		if !ok {
			return nil, fmt.Errorf("ASCIIHex: invalid character %q at %d", c, i)
		}
		if !odd {
			hi = v
			odd = true
			continue
		}
		if err := out.WriteByte(hi<<4 | v); err != nil {
			return nil, err
		}
		odd = false
	}

	if odd {
		if err := out.WriteByte(hi << 4); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// ASCII85Decode decodes ASCII85Decode data. Five characters in '!'..'u'
// encode four bytes, 'z' stands for four zero bytes between groups, and
// "~>" ends the data. A leading "<~" is skipped. A final group of n
// characters yields n-1 bytes.
func ASCII85Decode(data []byte) ([]byte, error) {
	return ascii85Decode(data, nil, 0)
}

func ascii85Decode(data []byte, _ Params, limit int64) ([]byte, error) {
	out := newOutput(limit)

	i := 0
	for i < len(data) && isWhitespace(data[i]) {
		i++
	}
	if i+1 < len(data) && data[i] == '<' && data[i+1] == '~' {
		i += 2
	}

	var group [5]byte
	n := 0
	for ; i < len(data); i++ {
		c := data[i]
		switch {
		case isWhitespace(c):
			continue
		case c == '~':
			if i+1 < len(data) && data[i+1] != '>' {
				return nil, fmt.Errorf("ASCII85: '~' not followed by '>' at %d", i)
			}
			return flush85(out, group[:n])
		case c == 'z':
			if n != 0 {
				return nil, fmt.Errorf("ASCII85: 'z' inside a group at %d", i)
			}
			if err := out.repeat(0, 4); err != nil {
				return nil, err
			}
			continue
		case c < '!' || c > 'u':
			return nil, fmt.Errorf("ASCII85: invalid character %q at %d", c, i)
		}

		group[n] = c - '!'
		n++
		if n == 5 {
			if _, err := flush85(out, group[:]); err != nil {
				return nil, err
			}
			n = 0
		}
	}
	return flush85(out, group[:n])
}

// flush85 decodes one group of up to five digits. A partial group is padded
// with the highest digit and yields one byte less than its length.
func flush85(out *output, digits []byte) ([]byte, error) {
	if len(digits) == 1 {
		return nil, fmt.Errorf("ASCII85: final group has a single character")
	}
	if len(digits) == 0 {
		return out.Bytes(), nil
	}

	var v uint64
	for i := 0; i < 5; i++ {
		d := byte(84)
		if i < len(digits) {
			d = digits[i]
		}
		v = v*85 + uint64(d)
	}
	if v > 0xFFFFFFFF {
		return nil, fmt.Errorf("ASCII85: group value %d overflows 32 bits", v)
	}

	word := [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	if _, err := out.Write(word[:len(digits)-1]); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// isWhitespace reports whether c is a PDF whitespace character.
func isWhitespace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}
