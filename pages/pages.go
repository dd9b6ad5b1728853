package pages

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tsawler/gutenberg/core"
)

// ErrNoSuchPage is returned for a page index outside the document. It does
// not affect later requests.
var ErrNoSuchPage = errors.New("no such page")

// InheritableKeys are the page attributes a leaf takes from its ancestors
// when it does not define them itself.
var InheritableKeys = []string{"Resources", "MediaBox", "CropBox", "Rotate"}

// ObjectResolver interface for resolving indirect references
type ObjectResolver interface {
	Resolve(obj core.Object) (core.Object, error)
	ResolveReference(ref core.IndirectRef) (core.Object, error)
}

// Catalog represents the PDF document catalog (root of document structure)
type Catalog struct {
	dict     core.Dict
	resolver ObjectResolver
}

// NewCatalog creates a new catalog from a dictionary
func NewCatalog(dict core.Dict, resolver ObjectResolver) *Catalog {
	return &Catalog{
		dict:     dict,
		resolver: resolver,
	}
}

// Dict returns the catalog dictionary.
func (c *Catalog) Dict() core.Dict {
	return c.dict
}

// Type returns the catalog type (should be "Catalog")
func (c *Catalog) Type() string {
	return c.dict.TypeName()
}

// PagesRef returns the reference to the page tree root, if it is indirect.
func (c *Catalog) PagesRef() (core.IndirectRef, bool) {
	return c.dict.GetIndirectRef("Pages")
}

// Pages returns the page tree root
func (c *Catalog) Pages() (core.Dict, error) {
	pagesRef := c.dict.Get("Pages")
	if pagesRef == nil {
		return nil, fmt.Errorf("catalog missing /Pages entry")
	}

	pagesObj, err := c.resolver.Resolve(pagesRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve /Pages: %w", err)
	}

	pagesDict, ok := pagesObj.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("invalid /Pages type: %v", pagesObj.Type())
	}

	return pagesDict, nil
}

// Metadata returns the metadata stream if present
func (c *Catalog) Metadata() (*core.Stream, error) {
	metadataRef := c.dict.Get("Metadata")
	if metadataRef == nil {
		return nil, nil // Optional
	}

	metadataObj, err := c.resolver.Resolve(metadataRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve /Metadata: %w", err)
	}

	stream, ok := metadataObj.(*core.Stream)
	if !ok {
		return nil, fmt.Errorf("invalid /Metadata type: %v", metadataObj.Type())
	}

	return stream, nil
}

// Version returns the version entry if present
func (c *Catalog) Version() string {
	name, _ := c.dict.GetName("Version")
	return string(name)
}

// leaf is a flattened page: its reference, the dictionary read while
// walking the tree and the attributes inherited from its ancestors.
type leaf struct {
	ref       core.IndirectRef
	dict      core.Dict
	inherited core.Dict
}

// PageTree represents the PDF page tree. It is flattened once, by an
// explicit stack walk with a visited set, into a list of leaf references.
// A PageTree is safe for concurrent use.
type PageTree struct {
	root     core.Dict
	rootRef  *core.IndirectRef
	resolver ObjectResolver

	mu     sync.Mutex
	leaves []leaf
	pages  []*Page
}

// NewPageTree creates a new page tree from the root pages dictionary
func NewPageTree(root core.Dict, resolver ObjectResolver) *PageTree {
	return &PageTree{
		root:     root,
		resolver: resolver,
	}
}

// SetRootRef records the reference of the root node so a Kids entry
// pointing back at it is detected as a cycle.
func (t *PageTree) SetRootRef(ref core.IndirectRef) {
	t.rootRef = &ref
}

// Count returns the /Count entry of the root, which the file declares and
// which may disagree with the number of leaves actually reachable.
func (t *PageTree) Count() (int, error) {
	countObj := t.root.Get("Count")
	if countObj == nil {
		return 0, fmt.Errorf("page tree missing /Count entry")
	}

	count, ok := countObj.(core.Int)
	if !ok {
		return 0, fmt.Errorf("invalid /Count type: %v", countObj.Type())
	}

	return int(count), nil
}

// Len returns the number of leaves reachable from the root.
func (t *PageTree) Len() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.flatten(); err != nil {
		return 0, err
	}
	return len(t.leaves), nil
}

// Refs returns the references of every page in order. Direct page
// dictionaries have a zero reference.
func (t *PageTree) Refs() ([]core.IndirectRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.flatten(); err != nil {
		return nil, err
	}
	refs := make([]core.IndirectRef, len(t.leaves))
	for i, l := range t.leaves {
		refs[i] = l.ref
	}
	return refs, nil
}

// GetPage returns the page at the given index (0-based)
func (t *PageTree) GetPage(index int) (*Page, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.flatten(); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(t.leaves) {
		return nil, fmt.Errorf("%w: page index %d out of range [0, %d)", ErrNoSuchPage, index, len(t.leaves))
	}
	return t.materialize(index)
}

// Pages returns all pages as a slice
func (t *PageTree) Pages() ([]*Page, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.flatten(); err != nil {
		return nil, err
	}
	out := make([]*Page, len(t.leaves))
	for i := range t.leaves {
		p, err := t.materialize(i)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// materialize builds the Page of leaf i from the dictionary read by
// flatten, so a leaf is resolved only once.
func (t *PageTree) materialize(i int) (*Page, error) {
	if t.pages[i] == nil {
		l := t.leaves[i]
		t.pages[i] = NewPageAt(l.dict, l.ref, i, l.inherited, t.resolver)
	}
	return t.pages[i], nil
}

// frame is one intermediate node on the traversal stack.
type frame struct {
	kids      core.Array
	next      int
	inherited core.Dict
}

// flatten walks the tree once. Nodes with Kids are intermediate, every
// other dictionary is a leaf. Revisiting a reference fails with
// core.ErrPageTreeCycle. A failed walk is retried on the next call.
func (t *PageTree) flatten() error {
	if t.leaves != nil {
		return nil
	}

	visited := make(map[core.IndirectRef]bool)
	if t.rootRef != nil {
		visited[*t.rootRef] = true
	}

	rootKids, err := t.kids(t.root)
	if err != nil {
		return fmt.Errorf("failed to traverse page tree: %w", err)
	}

	leaves := make([]leaf, 0)
	stack := []*frame{{kids: rootKids, inherited: InheritFrom(nil, t.root)}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next >= len(top.kids) {
			stack = stack[:len(stack)-1]
			continue
		}
		kid := top.kids[top.next]
		top.next++

		var ref core.IndirectRef
		var node core.Dict
		switch k := kid.(type) {
		case core.IndirectRef:
			if visited[k] {
				return fmt.Errorf("%w: %s reached twice", core.ErrPageTreeCycle, k)
			}
			visited[k] = true
			obj, err := t.resolver.ResolveReference(k)
			if err != nil {
				return fmt.Errorf("failed to resolve kid %s: %w", k, err)
			}
			d, ok := obj.(core.Dict)
			if !ok {
				return fmt.Errorf("invalid kid %s type: %v", k, obj.Type())
			}
			ref, node = k, d
		case core.Dict:
			node = k
		default:
			return fmt.Errorf("invalid kid type: %v", kid.Type())
		}

		if node.Has("Kids") {
			kids, err := t.kids(node)
			if err != nil {
				return fmt.Errorf("failed to traverse page tree: %w", err)
			}
			stack = append(stack, &frame{kids: kids, inherited: InheritFrom(top.inherited, node)})
			continue
		}

		leaves = append(leaves, leaf{ref: ref, dict: node, inherited: top.inherited})
	}

	t.leaves = leaves
	t.pages = make([]*Page, len(leaves))
	return nil
}

// kids returns the resolved Kids array of an intermediate node.
func (t *PageTree) kids(node core.Dict) (core.Array, error) {
	kidsObj := node.Get("Kids")
	if kidsObj == nil {
		return nil, fmt.Errorf("Pages node missing /Kids entry")
	}
	resolved, err := t.resolver.Resolve(kidsObj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve /Kids: %w", err)
	}
	kids, ok := resolved.(core.Array)
	if !ok {
		return nil, fmt.Errorf("invalid /Kids type: %v", resolved.Type())
	}
	return kids, nil
}

// InheritFrom returns the inheritable attributes of node layered over
// inherited. Neither argument is modified.
func InheritFrom(inherited, node core.Dict) core.Dict {
	out := make(core.Dict, len(InheritableKeys))
	for k, v := range inherited {
		out[k] = v
	}
	for _, k := range InheritableKeys {
		if v := node.Get(k); v != nil {
			out[k] = v
		}
	}
	return out
}
