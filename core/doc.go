// Package core provides low-level PDF parsing primitives and object types.
//
// This package implements the structural layer of a PDF reader: a positional
// byte cursor, an object parser, cross-reference indexing across incremental
// revisions, the linearized fast path, stream decoding, and object stream
// unpacking. It never loads a whole file into memory; every scan creates its
// own [Lexer] over a shared io.ReaderAt.
//
// # Values
//
// [Object] is a closed union: [Null], [Bool], [Int], [Real], [String],
// [Name], [Array], [Dict], [IndirectRef] and *[Stream]. Dict and Array are
// plain Go maps and slices. IndirectRef is comparable, and the caches in
// this module and in the reader are keyed by it.
//
// # Parsing
//
// The [Lexer] type is a byte cursor with O(1) seeking and bounded pattern
// search. The [Parser] type turns its tokens into objects. Streams are
// captured without resolving references: an indirect Length is ignored and
// the data is bounded by the endstream marker.
//
// # Cross-Reference Tables
//
// [XRefParser.Build] runs the structural first pass: it scans the file for
// xref, trailer and startxref markers, follows the Prev chain of classic
// tables and xref streams, and merges revisions so the newest entry wins.
// [Index] resolves references through the merged [XRefTable].
//
// # Linearized Files
//
// [LinearizedState] serves the objects of the first-page section of a
// linearized file without building an index, and builds the classic index
// the first time anything else is requested.
//
// # Errors
//
// Every failure wraps one of the sentinel errors such as [ErrMalformedObject]
// or [ErrDanglingReference]; match them with errors.Is. [Error] carries the
// offset and reference of the failure.
package core
