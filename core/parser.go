package core

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

var (
	keywordEndstream = []byte("endstream")
)

// ReferenceResolver is an interface for resolving indirect references.
type ReferenceResolver interface {
	ResolveReference(ref IndirectRef) (Object, error)
}

// Parser is a recursive-descent parser that turns the tokens of a Lexer into
// objects. It never resolves references: a stream whose Length is indirect is
// bounded by its endstream marker instead.
type Parser struct {
	lexer  *Lexer
	limits Limits
	depth  int
}

// NewParser creates a parser reading from lex at its current position.
func NewParser(lex *Lexer) *Parser {
	return &Parser{
		lexer:  lex,
		limits: DefaultLimits(),
	}
}

// NewBytesParser creates a parser over an in-memory buffer.
func NewBytesParser(data []byte) *Parser {
	return NewParser(NewBytesLexer(data))
}

// SetLimits replaces the parser limits. Zero fields keep their defaults.
func (p *Parser) SetLimits(limits Limits) {
	p.limits = limits.withDefaults()
}

// Lexer returns the cursor the parser reads from.
func (p *Parser) Lexer() *Lexer {
	return p.lexer
}

// ParseObject parses the next object. A dictionary immediately followed by
// the stream keyword is returned as a *Stream with its raw data captured.
func (p *Parser) ParseObject() (Object, error) {
	obj, err := p.parseValue()
	if err != nil {
		return nil, err
	}

	dict, ok := obj.(Dict)
	if !ok {
		return obj, nil
	}
	tok, err := p.lexer.PeekToken()
	if err != nil || !tok.IsKeyword("stream") {
		return dict, nil
	}
	p.lexer.SeekTo(tok.Pos + int64(len(tok.Value)))
	return p.parseStream(dict)
}

// parseValue parses one object without stream detection.
func (p *Parser) parseValue() (Object, error) {
	tok, err := p.lexer.NextToken()
	if err != nil {
		return nil, err
	}

	switch tok.Type {
	case TokenKeyword:
		switch string(tok.Value) {
		case "null":
			return Null{}, nil
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		default:
			return nil, errorAt("parse object", tok.Pos, malformed("unexpected keyword %q", tok.Value))
		}

	case TokenInteger:
		return p.parseNumber(tok)

	case TokenReal:
		val, err := strconv.ParseFloat(string(tok.Value), 64)
		if err != nil {
			return nil, errorAt("parse object", tok.Pos, malformed("invalid real number %q", tok.Value))
		}
		return Real(val), nil

	case TokenString:
		return String(tok.Value), nil

	case TokenHexString:
		return decodeHexString(tok)

	case TokenName:
		return Name(tok.Value), nil

	case TokenArrayStart:
		return p.parseArray(tok)

	case TokenDictStart:
		return p.parseDict(tok)

	default:
		return nil, errorAt("parse object", tok.Pos, malformed("unexpected %v", tok.Type))
	}
}

// decodeHexString converts the digits of a hex string token to bytes.
// An odd final digit is padded with 0.
func decodeHexString(tok Token) (Object, error) {
	hexStr := tok.Value
	result := make([]byte, (len(hexStr)+1)/2)
	for i := 0; i < len(hexStr); i += 2 {
		hi := hexValue(hexStr[i])
		var lo byte
		if i+1 < len(hexStr) {
			lo = hexValue(hexStr[i+1])
		}
		result[i/2] = hi<<4 | lo
	}
	return String(result), nil
}

// parseNumber parses an integer or an indirect reference. References are
// detected by a two-token lookahead ("num gen R"); when the lookahead does not
// match the cursor is moved back.
func (p *Parser) parseNumber(first Token) (Object, error) {
	firstInt, err := strconv.ParseInt(string(first.Value), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(first.Value), 64)
		if ferr != nil {
			return nil, errorAt("parse object", first.Pos, malformed("invalid number %q", first.Value))
		}
		return Real(f), nil
	}

	mark := p.lexer.Position()
	if firstInt >= 0 {
		second, err := p.lexer.NextToken()
		if err == nil && second.Type == TokenInteger {
			third, err := p.lexer.NextToken()
			if err == nil && third.Type == TokenIndirectRef {
				gen, err := strconv.ParseInt(string(second.Value), 10, 64)
				if err == nil && gen >= 0 {
					return IndirectRef{Number: int(firstInt), Generation: int(gen)}, nil
				}
			}
		}
		p.lexer.SeekTo(mark)
	}
	return Int(firstInt), nil
}

// enter increments the nesting depth, failing past the configured limit.
func (p *Parser) enter(pos int64) error {
	p.depth++
	if p.depth > p.limits.MaxNestingDepth {
		return errorAt("parse object", pos, malformed("nesting deeper than %d", p.limits.MaxNestingDepth))
	}
	return nil
}

// containerErr turns end of input inside an array or dictionary into a
// syntax error: the container was never closed.
func containerErr(what string, start int64, err error) error {
	if errors.Is(err, ErrUnexpectedEOF) && !errors.Is(err, ErrMalformedObject) {
		return errorAt("parse "+what, start, fmt.Errorf("%w: unterminated %s", ErrMalformedObject, what))
	}
	return err
}

// parseArray parses a PDF array "[obj1 obj2 ...]".
func (p *Parser) parseArray(open Token) (Object, error) {
	if err := p.enter(open.Pos); err != nil {
		return nil, err
	}
	defer func() { p.depth-- }()

	arr := Array{}
	for {
		tok, err := p.lexer.PeekToken()
		if err != nil {
			return nil, containerErr("array", open.Pos, err)
		}
		if tok.Type == TokenArrayEnd {
			p.lexer.SeekTo(tok.Pos + 1)
			return arr, nil
		}
		if tok.Type == TokenDictEnd {
			return nil, errorAt("parse array", tok.Pos, malformed("unbalanced '>>' in array"))
		}

		obj, err := p.parseValue()
		if err != nil {
			return nil, containerErr("array", open.Pos, err)
		}
		arr = append(arr, obj)
	}
}

// parseDict parses a PDF dictionary "<< /Key value ... >>". Entries whose
// value is null are dropped, which the format defines as equivalent to an
// absent key.
func (p *Parser) parseDict(open Token) (Object, error) {
	if err := p.enter(open.Pos); err != nil {
		return nil, err
	}
	defer func() { p.depth-- }()

	dict := make(Dict)
	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return nil, containerErr("dictionary", open.Pos, err)
		}
		if tok.Type == TokenDictEnd {
			return dict, nil
		}
		if tok.Type != TokenName {
			return nil, errorAt("parse dictionary", tok.Pos, malformed("expected name for dictionary key, got %v", tok.Type))
		}
		key := string(tok.Value)

		next, err := p.lexer.PeekToken()
		if err != nil {
			return nil, containerErr("dictionary", open.Pos, err)
		}
		if next.Type == TokenDictEnd || next.Type == TokenArrayEnd {
			return nil, errorAt("parse dictionary", next.Pos, malformed("missing value for key /%s", key))
		}

		value, err := p.parseValue()
		if err != nil {
			return nil, containerErr("dictionary", open.Pos, err)
		}
		if _, isNull := value.(Null); isNull {
			delete(dict, key)
			continue
		}
		dict[key] = value
	}
}

// ParseIndirectObject parses an indirect object definition:
// "num gen obj <object> endobj" or "num gen obj <dict> stream ... endstream endobj".
// A missing endobj is tolerated.
func (p *Parser) ParseIndirectObject() (*IndirectObject, error) {
	if err := p.lexer.SkipWhitespace(); err != nil {
		return nil, err
	}
	start := p.lexer.Position()

	ref, err := p.parseObjectHeader()
	if err != nil {
		return nil, err
	}

	obj, err := p.ParseObject()
	if err != nil {
		return nil, err
	}

	if tok, err := p.lexer.PeekToken(); err == nil && tok.IsKeyword("endobj") {
		p.lexer.SeekTo(tok.Pos + int64(len(tok.Value)))
	}

	return &IndirectObject{Ref: ref, Object: obj, Offset: start}, nil
}

// parseObjectHeader reads "num gen obj".
func (p *Parser) parseObjectHeader() (IndirectRef, error) {
	numTok, err := p.lexer.NextToken()
	if err != nil {
		return IndirectRef{}, err
	}
	num, err := strconv.ParseInt(string(numTok.Value), 10, 64)
	if numTok.Type != TokenInteger || err != nil || num < 0 {
		return IndirectRef{}, errorAt("parse object header", numTok.Pos, malformed("expected object number, got %v %q", numTok.Type, numTok.Value))
	}

	genTok, err := p.lexer.NextToken()
	if err != nil {
		return IndirectRef{}, err
	}
	gen, err := strconv.ParseInt(string(genTok.Value), 10, 64)
	if genTok.Type != TokenInteger || err != nil || gen < 0 {
		return IndirectRef{}, errorAt("parse object header", genTok.Pos, malformed("expected generation number, got %v %q", genTok.Type, genTok.Value))
	}

	objTok, err := p.lexer.NextToken()
	if err != nil {
		return IndirectRef{}, err
	}
	if !objTok.IsKeyword("obj") {
		return IndirectRef{}, errorAt("parse object header", objTok.Pos, malformed("expected 'obj' keyword, got %q", objTok.Value))
	}

	return IndirectRef{Number: int(num), Generation: int(gen)}, nil
}

// parseStream captures the data of a stream whose stream keyword has just
// been consumed.
//
// A direct Length is trusted first; if endstream does not follow the
// declared bytes, the data is re-derived from the literal endstream marker
// and the stream is flagged LengthRecovered. An indirect or missing Length
// is never resolved here: the marker bounds the data directly.
func (p *Parser) parseStream(dict Dict) (*Stream, error) {
	if err := p.lexer.SkipStreamEOL(); err != nil {
		return nil, err
	}
	dataStart := p.lexer.Position()

	length, direct := dict.GetInt("Length")
	if direct && length >= 0 {
		if int64(length) > p.limits.MaxStreamLength {
			return nil, errorAt("read stream", dataStart, malformed("stream length %d exceeds limit %d", length, p.limits.MaxStreamLength))
		}
		if data, ok := p.readDeclared(dataStart, int64(length)); ok {
			return &Stream{Dict: dict, Data: data, Offset: dataStart}, nil
		}
		data, err := p.readToMarker(dataStart)
		if err != nil {
			return nil, errorAt("read stream", dataStart, fmt.Errorf("%w: declared Length %d: %v", ErrStreamLengthMismatch, length, err))
		}
		return &Stream{Dict: dict, Data: data, Offset: dataStart, LengthRecovered: true}, nil
	}

	data, err := p.readToMarker(dataStart)
	if err != nil {
		return nil, errorAt("read stream", dataStart, fmt.Errorf("%w: %v", ErrMalformedObject, err))
	}
	return &Stream{Dict: dict, Data: data, Offset: dataStart}, nil
}

// readDeclared reads n bytes at start and checks that endstream follows,
// leaving the cursor after the keyword. On failure the cursor is undefined.
func (p *Parser) readDeclared(start, n int64) ([]byte, bool) {
	if start+n > p.lexer.Size() {
		return nil, false
	}
	if err := p.lexer.SeekTo(start); err != nil {
		return nil, false
	}
	data, err := p.lexer.ReadBytes(int(n))
	if err != nil {
		return nil, false
	}
	for {
		b, err := p.lexer.peek()
		if err != nil || !isWhitespace(b) {
			break
		}
		p.lexer.pos++
	}
	w, err := p.lexer.window(len(keywordEndstream))
	if err != nil || !bytes.Equal(w, keywordEndstream) {
		return nil, false
	}
	p.lexer.pos += int64(len(keywordEndstream))
	return data, true
}

// readToMarker reads from start up to the next endstream keyword, dropping
// the end-of-line that precedes it, and leaves the cursor after the keyword.
func (p *Parser) readToMarker(start int64) ([]byte, error) {
	if err := p.lexer.SeekTo(start); err != nil {
		return nil, err
	}
	limit := start + p.limits.MaxStreamLength + int64(len(keywordEndstream)) + 2
	end, ok := p.lexer.IndexFrom(keywordEndstream, limit)
	if !ok {
		return nil, errors.New("endstream marker not found")
	}
	data, err := p.lexer.ReadBytes(int(end - start))
	if err != nil {
		return nil, err
	}
	switch {
	case bytes.HasSuffix(data, []byte("\r\n")):
		data = data[:len(data)-2]
	case bytes.HasSuffix(data, []byte("\n")), bytes.HasSuffix(data, []byte("\r")):
		data = data[:len(data)-1]
	}
	p.lexer.SeekTo(end + int64(len(keywordEndstream)))
	return data, nil
}
