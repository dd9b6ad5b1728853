// Package reader opens PDF files and resolves their objects and pages.
//
// # Opening PDF Files
//
//	doc, err := reader.Open("document.pdf")
//	if err != nil {
//	    return err
//	}
//	defer doc.Close()
//
// [Open] maps the file read-only where the platform allows it.
// [NewDocument] works on any io.ReaderAt and its size. Opening reads the
// header, the first object and, for classic files, every cross-reference
// section. Object bodies are read only when requested.
//
// # Resolution Modes
//
// A file whose first object is a valid linearization dictionary is opened
// on the linearized path: the first page, the catalog and the page count are
// served from the first-page section without indexing the rest of the file.
// The first request for anything else builds the classic index once, and
// every later request uses it. Invalid hints select the classic index at
// open time.
//
// # Pages and Objects
//
// GetPage takes a 0-based index; an index outside the document fails with
// [ErrNoSuchPage] and leaves the Document usable. GetObject loads one
// reference, Resolve follows a reference if given one, ResolveDeep expands
// a whole object tree and Decode applies a stream's filters. Version, Info,
// Trailer and XRefSections describe the file itself.
//
// # Object Caching
//
// Every loaded object is cached by reference for the lifetime of the
// Document, and concurrent requests for the same reference share one load.
// Failed loads are not cached.
//
// # Diagnostics
//
// [WithLogger] receives debug-level messages about damaged data that was
// worked around. [WithObserver] receives structured [Event] values.
package reader
