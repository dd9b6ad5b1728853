// Package pages flattens the PDF page tree and exposes individual pages.
//
// A node with a /Kids entry is an intermediate node and any other
// dictionary is a page. [PageTree] walks the tree once with an explicit
// stack and a visited set, recording only leaf references; a reference
// reached twice fails with core.ErrPageTreeCycle. Page dictionaries are
// loaded the first time they are requested.
//
//	tree := pages.NewPageTree(pagesDict, resolver)
//	n, _ := tree.Len()
//	page, _ := tree.GetPage(0) // 0-indexed
//
// Resources, MediaBox, CropBox and Rotate are inherited from ancestors when
// a page does not define them (see [InheritFrom]). A required attribute
// missing everywhere yields [ErrNoAttribute].
//
// Lookups go through [ObjectResolver], so the package does not depend on
// the reader.
package pages
