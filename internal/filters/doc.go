// Package filters provides PDF stream decode filters and a registry that
// maps filter names to them.
//
// # Supported Filters
//
//   - FlateDecode (Fl): zlib/deflate, with TIFF and PNG predictors
//   - LZWDecode (LZW): both EarlyChange variants, with predictors
//   - ASCIIHexDecode (AHx) and ASCII85Decode (A85)
//   - RunLengthDecode (RL)
//   - CCITTFaxDecode (CCF): one-dimensional Group 3 and Group 4 via
//     golang.org/x/image/ccitt
//   - DCTDecode and JPXDecode: passed through unchanged
//   - Crypt: Identity only
//
// Filters can be called directly:
//
//	decoded, err := filters.FlateDecode(data, filters.Params{
//	    "Predictor": 12,
//	    "Columns":   5,
//	})
//
// or through a Registry, which bounds the decoded size:
//
//	fn, ok := filters.Default().Lookup("FlateDecode")
//	decoded, err := fn(data, params, 64<<20)
//
// Default returns a shared registry; Clone it before registering extra
// filters.
package filters
