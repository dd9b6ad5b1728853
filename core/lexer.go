package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// TokenType represents the type of token
type TokenType int

const (
	TokenKeyword     TokenType = iota // true, false, null, obj, endobj, stream, xref, trailer, ...
	TokenInteger                      // 123
	TokenReal                         // 3.14
	TokenString                       // (hello)
	TokenHexString                    // <48656C6C6F>
	TokenName                         // /Type
	TokenArrayStart                   // [
	TokenArrayEnd                     // ]
	TokenDictStart                    // <<
	TokenDictEnd                      // >>
	TokenIndirectRef                  // R (after two numbers)
)

// String returns the name of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenKeyword:
		return "keyword"
	case TokenInteger:
		return "integer"
	case TokenReal:
		return "real"
	case TokenString:
		return "string"
	case TokenHexString:
		return "hex string"
	case TokenName:
		return "name"
	case TokenArrayStart:
		return "'['"
	case TokenArrayEnd:
		return "']'"
	case TokenDictStart:
		return "'<<'"
	case TokenDictEnd:
		return "'>>'"
	case TokenIndirectRef:
		return "'R'"
	default:
		return "unknown"
	}
}

// Token represents a lexical token
type Token struct {
	Type  TokenType
	Value []byte
	Pos   int64 // Absolute offset of the first byte of the token
}

// IsKeyword reports whether t is the keyword kw.
func (t Token) IsKeyword(kw string) bool {
	return t.Type == TokenKeyword && string(t.Value) == kw
}

// windowSize is the number of bytes fetched from the source per refill.
const windowSize = 4096

// Lexer is a positional byte cursor over a PDF file. It reads through an
// io.ReaderAt with a small window, so SeekTo is O(1) and the file is never held
// in memory as a whole. A Lexer is not safe for concurrent use; create one per
// scan. Many Lexers may share the same io.ReaderAt.
type Lexer struct {
	src    io.ReaderAt
	size   int64
	pos    int64
	buf    []byte
	bufOff int64
}

// NewLexer creates a lexer over the first size bytes of r, positioned at 0.
func NewLexer(r io.ReaderAt, size int64) *Lexer {
	return &Lexer{src: r, size: size}
}

// NewBytesLexer creates a lexer over an in-memory buffer.
func NewBytesLexer(data []byte) *Lexer {
	return NewLexer(bytes.NewReader(data), int64(len(data)))
}

// Position returns the absolute offset of the next byte to be read.
func (l *Lexer) Position() int64 {
	return l.pos
}

// Size returns the length of the underlying input.
func (l *Lexer) Size() int64 {
	return l.size
}

// SeekTo moves the cursor to an absolute offset. Seeking to Size() is allowed
// and leaves the cursor at end of input.
func (l *Lexer) SeekTo(offset int64) error {
	if offset < 0 || offset > l.size {
		return errorAt("seek", offset, ErrUnexpectedEOF)
	}
	l.pos = offset
	return nil
}

// window returns up to n bytes starting at the cursor without consuming
// them. The slice is shorter than n only at end of input and is only valid
// until the next call that moves or refills the window.
func (l *Lexer) window(n int) ([]byte, error) {
	if l.pos >= l.size {
		return nil, nil
	}
	if l.buf != nil && l.pos >= l.bufOff {
		start := l.pos - l.bufOff
		end := start + int64(n)
		if end <= int64(len(l.buf)) {
			return l.buf[start:end], nil
		}
		if l.bufOff+int64(len(l.buf)) == l.size && start < int64(len(l.buf)) {
			return l.buf[start:], nil
		}
	}

	want := int64(windowSize)
	if int64(n) > want {
		want = int64(n)
	}
	if rem := l.size - l.pos; want > rem {
		want = rem
	}
	if int64(cap(l.buf)) < want {
		l.buf = make([]byte, want)
	}
	l.buf = l.buf[:want]
	m, err := l.src.ReadAt(l.buf, l.pos)
	if int64(m) < want {
		l.buf = nil
		if err == nil || errors.Is(err, io.EOF) {
			err = ErrUnexpectedEOF
		}
		return nil, errorAt("read", l.pos+int64(m), err)
	}
	l.bufOff = l.pos
	if n > m {
		return l.buf, nil
	}
	return l.buf[:n], nil
}

// peek looks at the next byte without consuming it
func (l *Lexer) peek() (byte, error) {
	w, err := l.window(1)
	if err != nil {
		return 0, err
	}
	if len(w) == 0 {
		return 0, ErrUnexpectedEOF
	}
	return w[0], nil
}

// readByte reads a single byte and advances position
func (l *Lexer) readByte() (byte, error) {
	b, err := l.peek()
	if err != nil {
		return 0, err
	}
	l.pos++
	return b, nil
}

// PeekByte returns the next byte without consuming it.
func (l *Lexer) PeekByte() (byte, error) {
	b, err := l.peek()
	if errors.Is(err, ErrUnexpectedEOF) && !isStructured(err) {
		return 0, errorAt("peek", l.pos, err)
	}
	return b, err
}

// ReadByte reads and returns a single byte.
func (l *Lexer) ReadByte() (byte, error) {
	b, err := l.readByte()
	if errors.Is(err, ErrUnexpectedEOF) && !isStructured(err) {
		return 0, errorAt("read", l.pos, err)
	}
	return b, err
}

// isStructured reports whether err already carries an offset.
func isStructured(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// SkipWhitespace skips whitespace and comments. Reaching end of input is not
// an error.
// PDF whitespace: space (0x20), tab (0x09), LF (0x0A), CR (0x0D), FF (0x0C), null (0x00)
func (l *Lexer) SkipWhitespace() error {
	for {
		b, err := l.peek()
		if errors.Is(err, ErrUnexpectedEOF) && !isStructured(err) {
			return nil
		}
		if err != nil {
			return err
		}
		switch {
		case isWhitespace(b):
			l.pos++
		case b == '%':
			if _, err := l.nextLine(0); err != nil && !errors.Is(err, ErrUnexpectedEOF) {
				return err
			}
		default:
			return nil
		}
	}
}

// NextLine returns the bytes up to the next end-of-line marker (CR, LF or
// CR LF) and moves past the marker.
func (l *Lexer) NextLine() (string, error) {
	return l.nextLine(-1)
}

// nextLine is NextLine keeping at most keep bytes of the line (all if keep
// is negative). The whole line is consumed either way.
func (l *Lexer) nextLine(keep int) (string, error) {
	if l.pos >= l.size {
		return "", errorAt("read line", l.pos, ErrUnexpectedEOF)
	}
	var line []byte
	for l.pos < l.size {
		w, err := l.window(windowSize)
		if err != nil {
			return "", err
		}
		i := bytes.IndexAny(w, "\r\n")
		chunk := w
		if i >= 0 {
			chunk = w[:i]
		}
		if keep < 0 || len(line) < keep {
			room := len(chunk)
			if keep >= 0 && len(line)+room > keep {
				room = keep - len(line)
			}
			line = append(line, chunk[:room]...)
		}
		if i < 0 {
			l.pos += int64(len(w))
			continue
		}
		cr := w[i] == '\r'
		l.pos += int64(i) + 1
		if cr {
			if b, err := l.peek(); err == nil && b == '\n' {
				l.pos++
			}
		}
		break
	}
	return string(line), nil
}

// PeekToken returns the next token without consuming it.
func (l *Lexer) PeekToken() (Token, error) {
	mark := l.pos
	tok, err := l.NextToken()
	l.pos = mark
	return tok, err
}

// NextToken returns the next token from the input. At end of input it fails
// with ErrUnexpectedEOF.
func (l *Lexer) NextToken() (Token, error) {
	if err := l.SkipWhitespace(); err != nil {
		return Token{}, err
	}

	start := l.pos
	b, err := l.peek()
	if err != nil {
		if !isStructured(err) {
			err = errorAt("read token", start, err)
		}
		return Token{}, err
	}

	switch b {
	case '[':
		l.pos++
		return Token{Type: TokenArrayStart, Value: []byte{'['}, Pos: start}, nil
	case ']':
		l.pos++
		return Token{Type: TokenArrayEnd, Value: []byte{']'}, Pos: start}, nil
	case '{', '}':
		l.pos++
		return Token{Type: TokenKeyword, Value: []byte{b}, Pos: start}, nil
	case '(':
		return l.readString()
	case '<':
		// Could be << (dict start) or <hex string>
		if w, _ := l.window(2); len(w) == 2 && w[1] == '<' {
			l.pos += 2
			return Token{Type: TokenDictStart, Value: []byte("<<"), Pos: start}, nil
		}
		return l.readHexString()
	case '>':
		if w, _ := l.window(2); len(w) == 2 && w[1] == '>' {
			l.pos += 2
			return Token{Type: TokenDictEnd, Value: []byte(">>"), Pos: start}, nil
		}
		return Token{}, errorAt("read token", start, malformed("unexpected '>'"))
	case ')':
		return Token{}, errorAt("read token", start, malformed("unbalanced ')'"))
	case '/':
		return l.readName()
	}

	if isDigit(b) || b == '-' || b == '+' || b == '.' {
		return l.readNumber()
	}

	return l.readKeyword()
}

// readString reads a literal string (hello)
func (l *Lexer) readString() (Token, error) {
	start := l.pos
	var buf bytes.Buffer

	l.pos++ // opening (
	depth := 1
	for depth > 0 {
		b, err := l.readByte()
		if err != nil {
			return Token{}, unterminated(start, "string", err)
		}

		switch b {
		case '(':
			depth++
			buf.WriteByte(b)
		case ')':
			depth--
			if depth > 0 {
				buf.WriteByte(b)
			}
		case '\\':
			next, err := l.readByte()
			if err != nil {
				return Token{}, unterminated(start, "string", err)
			}
			switch next {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '(', ')', '\\':
				buf.WriteByte(next)
			case '\r', '\n':
				// Line continuation
				if next == '\r' {
					if p, err := l.peek(); err == nil && p == '\n' {
						l.pos++
					}
				}
			case '0', '1', '2', '3', '4', '5', '6', '7':
				val := next - '0'
				for i := 0; i < 2; i++ {
					p, err := l.peek()
					if err != nil || !isOctalDigit(p) {
						break
					}
					l.pos++
					val = val*8 + (p - '0')
				}
				buf.WriteByte(val)
			default:
				// Unknown escape - keep the character
				buf.WriteByte(next)
			}
		case '\r':
			// An unescaped end-of-line is read as a single LF
			if p, err := l.peek(); err == nil && p == '\n' {
				l.pos++
			}
			buf.WriteByte('\n')
		default:
			buf.WriteByte(b)
		}
	}

	return Token{Type: TokenString, Value: buf.Bytes(), Pos: start}, nil
}

// readHexString reads a hexadecimal string <48656C6C6F>
func (l *Lexer) readHexString() (Token, error) {
	start := l.pos
	var buf bytes.Buffer

	l.pos++ // opening <
	for {
		b, err := l.readByte()
		if err != nil {
			return Token{}, unterminated(start, "hex string", err)
		}
		if b == '>' {
			break
		}
		if isWhitespace(b) {
			continue
		}
		if !isHexDigit(b) {
			return Token{}, errorAt("read hex string", l.pos-1, malformed("invalid hex digit %q", b))
		}
		buf.WriteByte(b)
	}

	return Token{Type: TokenHexString, Value: buf.Bytes(), Pos: start}, nil
}

// readName reads a name object /Type
func (l *Lexer) readName() (Token, error) {
	start := l.pos
	var buf bytes.Buffer

	l.pos++ // the /
	for {
		b, err := l.peek()
		if err != nil {
			if isStructured(err) {
				return Token{}, err
			}
			break
		}
		if isWhitespace(b) || isDelimiter(b) {
			break
		}
		l.pos++

		if b == '#' {
			w, _ := l.window(2)
			if len(w) < 2 || !isHexDigit(w[0]) || !isHexDigit(w[1]) {
				return Token{}, errorAt("read name", l.pos-1, malformed("invalid hex escape in name"))
			}
			buf.WriteByte(hexValue(w[0])<<4 | hexValue(w[1]))
			l.pos += 2
			continue
		}
		buf.WriteByte(b)
	}

	return Token{Type: TokenName, Value: buf.Bytes(), Pos: start}, nil
}

// readNumber reads an integer or real number
func (l *Lexer) readNumber() (Token, error) {
	start := l.pos
	var buf bytes.Buffer
	hasDecimal := false

	for {
		b, err := l.peek()
		if err != nil {
			if isStructured(err) {
				return Token{}, err
			}
			break
		}

		if b == '.' {
			if hasDecimal {
				break // Second decimal point - not part of this number
			}
			hasDecimal = true
		} else if !isDigit(b) && !(buf.Len() == 0 && (b == '-' || b == '+')) {
			break
		}
		l.pos++
		buf.WriteByte(b)
	}

	tokenType := TokenInteger
	if hasDecimal {
		tokenType = TokenReal
	}

	return Token{Type: tokenType, Value: buf.Bytes(), Pos: start}, nil
}

// readKeyword reads a run of regular characters (true, false, null, R, obj, ...)
func (l *Lexer) readKeyword() (Token, error) {
	start := l.pos
	var buf bytes.Buffer

	for {
		b, err := l.peek()
		if err != nil {
			if isStructured(err) {
				return Token{}, err
			}
			break
		}
		if isWhitespace(b) || isDelimiter(b) {
			break
		}
		l.pos++
		buf.WriteByte(b)
	}

	value := buf.Bytes()
	if len(value) == 1 && value[0] == 'R' {
		return Token{Type: TokenIndirectRef, Value: value, Pos: start}, nil
	}
	return Token{Type: TokenKeyword, Value: value, Pos: start}, nil
}

// unterminated reports end of input inside a string-like token. Running out of
// bytes there means the string was never closed, which is a syntax error.
func unterminated(start int64, what string, err error) error {
	if errors.Is(err, ErrUnexpectedEOF) {
		return errorAt("read "+what, start, fmt.Errorf("%w: unterminated %s", ErrMalformedObject, what))
	}
	return err
}

// ReadBytes reads exactly n bytes. The returned slice is owned by the caller.
func (l *Lexer) ReadBytes(n int) ([]byte, error) {
	if n < 0 || l.pos+int64(n) > l.size {
		return nil, errorAt("read bytes", l.pos, fmt.Errorf("%w: want %d bytes, %d left", ErrUnexpectedEOF, n, l.size-l.pos))
	}
	data := make([]byte, n)
	m, err := l.src.ReadAt(data, l.pos)
	if m < n {
		if err == nil || errors.Is(err, io.EOF) {
			err = ErrUnexpectedEOF
		}
		return nil, errorAt("read bytes", l.pos+int64(m), err)
	}
	l.pos += int64(n)
	return data, nil
}

// SkipStreamEOL skips the end-of-line marker that follows the stream keyword.
// The format requires CR LF or LF; a lone CR and stray spaces before the
// marker are tolerated.
func (l *Lexer) SkipStreamEOL() error {
	for {
		b, err := l.peek()
		if err != nil {
			if isStructured(err) {
				return err
			}
			return errorAt("skip stream EOL", l.pos, err)
		}
		switch b {
		case ' ', '\t':
			l.pos++
			continue
		case '\r':
			l.pos++
			if p, err := l.peek(); err == nil && p == '\n' {
				l.pos++
			}
		case '\n':
			l.pos++
		}
		return nil
	}
}

// IndexFrom returns the absolute offset of the first occurrence of pattern at
// or after the cursor and before limit. The cursor does not move.
func (l *Lexer) IndexFrom(pattern []byte, limit int64) (int64, bool) {
	if limit > l.size {
		limit = l.size
	}
	if len(pattern) == 0 {
		return l.pos, l.pos <= limit
	}
	chunk := make([]byte, windowSize+len(pattern)-1)
	for off := l.pos; off+int64(len(pattern)) <= limit; off += windowSize {
		n := int64(len(chunk))
		if off+n > limit {
			n = limit - off
		}
		m, err := l.src.ReadAt(chunk[:n], off)
		if idx := bytes.Index(chunk[:m], pattern); idx >= 0 {
			return off + int64(idx), true
		}
		if err != nil && int64(m) < n {
			return 0, false
		}
	}
	return 0, false
}

// LastIndex returns the absolute offset of the last occurrence of pattern that
// lies entirely within [start, end). The cursor does not move.
func (l *Lexer) LastIndex(pattern []byte, start, end int64) (int64, bool) {
	if start < 0 {
		start = 0
	}
	if end > l.size {
		end = l.size
	}
	if len(pattern) == 0 || end-start < int64(len(pattern)) {
		return 0, false
	}
	overlap := int64(len(pattern) - 1)
	chunk := make([]byte, windowSize+overlap)
	for hi := end; hi-start >= int64(len(pattern)); hi -= windowSize {
		lo := hi - int64(len(chunk))
		if lo < start {
			lo = start
		}
		m, err := l.src.ReadAt(chunk[:hi-lo], lo)
		if int64(m) < hi-lo && err != nil {
			return 0, false
		}
		if idx := bytes.LastIndex(chunk[:m], pattern); idx >= 0 {
			return lo + int64(idx), true
		}
		if lo == start {
			break
		}
	}
	return 0, false
}

// Helper functions

func isWhitespace(b byte) bool {
	// PDF whitespace: space, tab, LF, CR, FF, null
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == 0
}

func isDelimiter(b byte) bool {
	return b == '(' || b == ')' || b == '<' || b == '>' || b == '[' || b == ']' ||
		b == '{' || b == '}' || b == '/' || b == '%'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isOctalDigit(b byte) bool {
	return b >= '0' && b <= '7'
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func hexValue(b byte) byte {
	switch {
	case b >= '0' && b <= '9':
		return b - '0'
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10
	}
	return 0
}
