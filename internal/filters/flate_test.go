package filters

import (
	"bytes"
	"compress/zlib"
	"errors"
	"testing"
)

// zlibCompress compresses data for testing
func zlibCompress(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

func TestFlateDecode(t *testing.T) {
	text := []byte("Hello, World! This is test data for FlateDecode.")

	tests := []struct {
		name   string
		data   []byte
		params Params
		want   []byte
	}{
		{"plain", text, nil, text},
		{"predictor 1", text, Params{"Predictor": 1}, text},
		{"empty", nil, nil, []byte{}},
		{"png up", []byte{0, 10, 20, 30, 2, 5, 5, 5}, Params{"Predictor": 12, "Columns": 3}, []byte{10, 20, 30, 15, 25, 35}},
		{"tiff", []byte{10, 10, 10, 10}, Params{"Predictor": 2, "Columns": 4}, []byte{10, 20, 30, 40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FlateDecode(zlibCompress(tt.data), tt.params)
			if err != nil {
				t.Fatalf("FlateDecode() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("FlateDecode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFlateDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		params Params
	}{
		{"not zlib", []byte("not compressed at all"), nil},
		{"empty input", nil, nil},
		{"unknown predictor", zlibCompress([]byte{1, 2, 3}), Params{"Predictor": 7}},
		{"bad bits per component", zlibCompress([]byte{0, 1, 2, 3}), Params{"Predictor": 12, "Columns": 3, "BitsPerComponent": 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FlateDecode(tt.data, tt.params); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// A stream cut before its checksum still yields the inflated prefix.
func TestFlateDecodeTruncated(t *testing.T) {
	original := bytes.Repeat([]byte("truncated flate data "), 50)
	compressed := zlibCompress(original)

	decoded, err := FlateDecode(compressed[:len(compressed)-4], nil)
	if err != nil {
		t.Fatalf("FlateDecode() error = %v", err)
	}
	if !bytes.HasPrefix(original, decoded) || len(decoded) == 0 {
		t.Errorf("decoded %d bytes, want a non-empty prefix of the original", len(decoded))
	}
}

func TestFlateDecodeLimit(t *testing.T) {
	compressed := zlibCompress(bytes.Repeat([]byte{0}, 10000))

	if _, err := flateDecode(compressed, nil, 100); !errors.Is(err, ErrOutputLimit) {
		t.Errorf("flateDecode() error = %v, want ErrOutputLimit", err)
	}
	out, err := flateDecode(compressed, nil, 10000)
	if err != nil || len(out) != 10000 {
		t.Errorf("flateDecode() = %d bytes, %v; want 10000 bytes", len(out), err)
	}
}
