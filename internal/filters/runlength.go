package filters

import (
	"fmt"
)

// RunLengthDecode decodes byte-oriented run-length data. A length byte n in
// 0-127 copies the next n+1 bytes literally, 129-255 repeats the next byte
// 257-n times, and 128 marks end of data.
func RunLengthDecode(data []byte) ([]byte, error) {
	return runLengthDecode(data, nil, 0)
}

func runLengthDecode(data []byte, _ Params, limit int64) ([]byte, error) {
	out := newOutput(limit)
	for i := 0; i < len(data); {
		n := int(data[i])
		i++
		switch {
		case n == 128:
			return out.Bytes(), nil
		case n < 128:
			if i+n+1 > len(data) {
				return nil, fmt.Errorf("run length: literal run of %d bytes at %d overruns data", n+1, i-1)
			}
			if _, err := out.Write(data[i : i+n+1]); err != nil {
				return nil, err
			}
			i += n + 1
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("run length: missing repeat byte at %d", i-1)
			}
			if err := out.repeat(data[i], 257-n); err != nil {
				return nil, err
			}
			i++
		}
	}
	return out.Bytes(), nil
}
