package core

// Limits bounds the work done on untrusted input so malformed files fail
// instead of exhausting memory or looping.
type Limits struct {
	// Maximum nesting of arrays and dictionaries. Default: 256.
	MaxNestingDepth int

	// Maximum number of Prev links followed between xref sections. Default: 64.
	MaxXRefDepth int

	// Maximum decoded size of a single stream in bytes. Default: 256 MB.
	MaxDecodedSize int64

	// Maximum raw stream length in bytes. Default: 256 MB.
	MaxStreamLength int64

	// Maximum number of objects declared by an object stream. Default: 1,000,000.
	MaxContainerObjects int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxNestingDepth:     256,
		MaxXRefDepth:        64,
		MaxDecodedSize:      256 << 20,
		MaxStreamLength:     256 << 20,
		MaxContainerObjects: 1000000,
	}
}

// withDefaults fills zero fields from DefaultLimits.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxNestingDepth <= 0 {
		l.MaxNestingDepth = d.MaxNestingDepth
	}
	if l.MaxXRefDepth <= 0 {
		l.MaxXRefDepth = d.MaxXRefDepth
	}
	if l.MaxDecodedSize <= 0 {
		l.MaxDecodedSize = d.MaxDecodedSize
	}
	if l.MaxStreamLength <= 0 {
		l.MaxStreamLength = d.MaxStreamLength
	}
	if l.MaxContainerObjects <= 0 {
		l.MaxContainerObjects = d.MaxContainerObjects
	}
	return l
}
