// Package gutenberg provides a fluent API for inspecting the structure of
// PDF files: versions, cross-reference sections, pages and objects.
//
// Basic usage:
//
//	count, err := gutenberg.Open("document.pdf").PageCount()
//	if err != nil {
//	    // handle error
//	}
//
// With options:
//
//	summary, warnings, err := gutenberg.Open("report.pdf").
//	    WithoutMmap().
//	    Pages(1, 2).
//	    Summary()
//	if len(warnings) > 0 {
//	    log.Println("Warnings:", gutenberg.FormatWarnings(warnings))
//	}
//
// For advanced use cases, the lower-level reader and core packages are also
// available.
package gutenberg

import (
	"github.com/tsawler/gutenberg/reader"
)

// Open returns an Inspector for the PDF file at filename. The file is opened
// lazily by the first terminal operation. The Inspector must be closed when
// done, either explicitly via Close() or implicitly by a terminal operation
// documented as closing it.
//
// Example:
//
//	summary, _, err := gutenberg.Open("document.pdf").Summary()
func Open(filename string) *Inspector {
	return &Inspector{
		filename: filename,
		options:  defaultOptions(),
	}
}

// FromDocument creates an Inspector over an already-opened Document.
// The caller is responsible for closing the document.
//
// Example:
//
//	doc, err := reader.Open("document.pdf")
//	if err != nil {
//	    // handle error
//	}
//	defer doc.Close()
//	pages, _, err := gutenberg.FromDocument(doc).PageInfos()
func FromDocument(doc *reader.Document) *Inspector {
	return &Inspector{
		doc:       doc,
		ownsDoc:   false,
		docOpened: true,
		options:   defaultOptions(),
	}
}

// Must is a helper that wraps a call to a function returning (T, error)
// and panics if the error is non-nil. It is intended for use in scripts
// or tests where error handling would be cumbersome.
//
// Example:
//
//	count := gutenberg.Must(gutenberg.Open("document.pdf").PageCount())
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// MustWarn is like Must for calls that also return warnings, which are
// discarded.
//
// Example:
//
//	summary := gutenberg.MustWarn(gutenberg.Open("document.pdf").Summary())
func MustWarn[T any](val T, _ []Warning, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}
