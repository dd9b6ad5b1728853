package filters

import (
	"bytes"
	"errors"
	"testing"
)

func TestRunLengthDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    []byte
		wantErr bool
	}{
		{
			name: "literal run",
			data: []byte{2, 'a', 'b', 'c', 128},
			want: []byte("abc"),
		},
		{
			name: "repeat run",
			data: []byte{254, 'x', 128},
			want: []byte("xxx"),
		},
		{
			name: "mixed runs",
			data: []byte{0, 'a', 255, 'b', 1, 'c', 'd', 128},
			want: []byte("abbcd"),
		},
		{
			name: "missing EOD",
			data: []byte{1, 'h', 'i'},
			want: []byte("hi"),
		},
		{
			name: "data after EOD ignored",
			data: []byte{0, 'z', 128, 0, 'q'},
			want: []byte("z"),
		},
		{
			name:    "literal overrun",
			data:    []byte{5, 'a'},
			wantErr: true,
		},
		{
			name:    "missing repeat byte",
			data:    []byte{200},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RunLengthDecode(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RunLengthDecode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(got, tt.want) {
				t.Errorf("RunLengthDecode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunLengthDecodeLimit(t *testing.T) {
	data := []byte{129, 'a', 129, 'b', 128} // 128 + 128 bytes
	if _, err := runLengthDecode(data, nil, 200); !errors.Is(err, ErrOutputLimit) {
		t.Errorf("runLengthDecode() error = %v, want ErrOutputLimit", err)
	}
}
