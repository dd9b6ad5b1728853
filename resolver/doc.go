// Package resolver follows indirect references ("5 0 R") through any
// Source, such as a *reader.Document.
//
// Resolve follows a chain of references to the first direct object:
//
//	r := resolver.New(doc)
//	obj, err := r.Resolve(core.IndirectRef{Number: 5})
//
// Expand copies an object tree with every nested reference replaced by its
// target:
//
//	expanded, err := resolver.New(doc, resolver.WithMaxDepth(50)).Expand(catalog)
//
// A reference that reappears on the branch expanding it fails with
// [ErrCircularReference]. The same reference under two siblings is loaded
// once and shared. A Resolver keeps no state between calls, so one value
// may serve many goroutines.
package resolver
