package filters

import (
	"bytes"
	"fmt"
	"io"
)

// output accumulates decoded bytes and fails with ErrOutputLimit as soon as
// more than limit bytes are written. A limit of zero or less is unbounded.
type output struct {
	buf   bytes.Buffer
	limit int64
}

func newOutput(limit int64) *output {
	return &output{limit: limit}
}

func (o *output) check(n int) error {
	if o.limit > 0 && int64(o.buf.Len()+n) > o.limit {
		return fmt.Errorf("%w: more than %d bytes", ErrOutputLimit, o.limit)
	}
	return nil
}

func (o *output) Write(p []byte) (int, error) {
	if err := o.check(len(p)); err != nil {
		return 0, err
	}
	return o.buf.Write(p)
}

func (o *output) WriteByte(c byte) error {
	if err := o.check(1); err != nil {
		return err
	}
	return o.buf.WriteByte(c)
}

// repeat writes n copies of c.
func (o *output) repeat(c byte, n int) error {
	if err := o.check(n); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		o.buf.WriteByte(c)
	}
	return nil
}

func (o *output) Bytes() []byte {
	return o.buf.Bytes()
}

// readAllLimited reads r to the end, failing with ErrOutputLimit once more
// than limit bytes were produced. The bytes read before a read error are
// returned along with it.
func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if n > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrOutputLimit, limit)
	}
	return buf.Bytes(), err
}

// intParam returns params[key] as an int, or def when it is missing or not
// a number.
func intParam(params Params, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// boolParam returns params[key] as a bool, or def when it is missing or not
// a bool.
func boolParam(params Params, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}
