package core

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/unicode/norm"
)

var (
	utf16BOM = []byte{0xFE, 0xFF}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// pdfDocDiffs lists the PDFDocEncoding code points that differ from
// ISO Latin-1. 0x7F, 0x9F and 0xAD are undefined.
var pdfDocDiffs = map[byte]rune{
	0x18: '˘', 0x19: 'ˇ', 0x1A: 'ˆ', 0x1B: '˙',
	0x1C: '˝', 0x1D: '˛', 0x1E: '˚', 0x1F: '˜',
	0x80: '•', 0x81: '†', 0x82: '‡', 0x83: '…',
	0x84: '—', 0x85: '–', 0x86: 'ƒ', 0x87: '⁄',
	0x88: '‹', 0x89: '›', 0x8A: '−', 0x8B: '‰',
	0x8C: '„', 0x8D: '“', 0x8E: '”', 0x8F: '‘',
	0x90: '’', 0x91: '‚', 0x92: '™', 0x93: 'ﬁ',
	0x94: 'ﬂ', 0x95: 'Ł', 0x96: 'Œ', 0x97: 'Š',
	0x98: 'Ÿ', 0x99: 'Ž', 0x9A: 'ı', 0x9B: 'ł',
	0x9C: 'œ', 0x9D: 'š', 0x9E: 'ž', 0xA0: '€',
	0x7F: '�', 0x9F: '�', 0xAD: '�',
}

// Text decodes s as a PDF text string: UTF-16BE or UTF-8 when it starts
// with the matching byte order mark, PDFDocEncoding otherwise. The result is
// NFC normalized.
func (s String) Text() string {
	b := []byte(s)
	switch {
	case bytes.HasPrefix(b, utf16BOM):
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(b)
		if err != nil {
			return ""
		}
		return norm.NFC.String(string(out))
	case bytes.HasPrefix(b, utf8BOM):
		return norm.NFC.String(string(b[len(utf8BOM):]))
	}

	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if r, ok := pdfDocDiffs[c]; ok {
			sb.WriteRune(r)
			continue
		}
		sb.WriteRune(rune(c))
	}
	return norm.NFC.String(sb.String())
}

// Date parses s as a PDF date, "D:YYYYMMDDHHmmSSOHH'mm'". Every field after
// the year is optional; a missing offset means UTC.
func (s String) Date() (time.Time, error) {
	str := strings.TrimSpace(s.Text())
	str = strings.TrimPrefix(str, "D:")

	fields := []struct {
		width int
		def   int
	}{{4, 0}, {2, 1}, {2, 1}, {2, 0}, {2, 0}, {2, 0}}
	vals := make([]int, len(fields))
	for i, f := range fields {
		vals[i] = f.def
		if len(str) == 0 || !isDigit(str[0]) {
			if i == 0 {
				return time.Time{}, fmt.Errorf("invalid date %q: missing year", string(s))
			}
			continue
		}
		if len(str) < f.width {
			return time.Time{}, fmt.Errorf("invalid date %q: truncated field", string(s))
		}
		v, err := strconv.Atoi(str[:f.width])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", string(s), err)
		}
		vals[i] = v
		str = str[f.width:]
	}

	loc, err := parseDateOffset(str)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", string(s), err)
	}
	return time.Date(vals[0], time.Month(vals[1]), vals[2], vals[3], vals[4], vals[5], 0, loc), nil
}

// parseDateOffset parses the "Z", "+HH'mm'" or "-HH'mm" suffix of a date.
func parseDateOffset(s string) (*time.Location, error) {
	if s == "" || s == "Z" || strings.HasPrefix(s, "Z") {
		return time.UTC, nil
	}

	sign := 1
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return nil, fmt.Errorf("unexpected %q", s)
	}

	parts := strings.FieldsFunc(s[1:], func(r rune) bool { return r == '\'' })
	if len(parts) == 0 {
		return nil, fmt.Errorf("missing offset hours")
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours > 23 {
		return nil, fmt.Errorf("invalid offset hours %q", parts[0])
	}
	minutes := 0
	if len(parts) > 1 {
		minutes, err = strconv.Atoi(parts[1])
		if err != nil || minutes > 59 {
			return nil, fmt.Errorf("invalid offset minutes %q", parts[1])
		}
	}
	return time.FixedZone("", sign*(hours*3600+minutes*60)), nil
}
