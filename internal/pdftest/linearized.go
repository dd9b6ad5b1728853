package pdftest

import (
	"fmt"
	"strings"
)

// LinearizedOptions controls Linearized.
type LinearizedOptions struct {
	// Pages is the number of pages; at least 1.
	Pages int
	// LengthDelta is added to the /L hint, so a non-zero value makes the
	// hints invalid.
	LengthDelta int64
}

// LinearizedLayout reports where things ended up in a Linearized file.
type LinearizedLayout struct {
	E         int64 // end of the first-page section
	MainXref  int64
	FirstXref int64
}

// Linearized returns a linearized file. Objects:
//
//	1 linearization dictionary
//	2 catalog
//	3 page tree root, with /MediaBox and /Resources to inherit
//	4 first page, 5 its content stream
//	6.. remaining pages, after the first-page section
//
// Numbers in the hints are zero padded so the file can be laid out twice
// with identical offsets.
func Linearized(opts LinearizedOptions) ([]byte, LinearizedLayout) {
	if opts.Pages < 1 {
		opts.Pages = 1
	}
	var layout LinearizedLayout
	var data []byte
	for pass := 0; pass < 2; pass++ {
		data, layout = layoutLinearized(opts, layout, int64(len(data)))
	}
	return data, layout
}

func layoutLinearized(opts LinearizedOptions, prev LinearizedLayout, size int64) ([]byte, LinearizedLayout) {
	var layout LinearizedLayout
	b := New("1.7")

	b.Object(1, fmt.Sprintf("<< /Linearized 1 /L %010d /O 4 /E %010d /N %d /T %010d /H [0 0] >>",
		size+opts.LengthDelta, prev.E, opts.Pages, prev.MainXref))

	// First-page cross-reference table, entries taken from the previous pass
	firstPage := []int{1, 2, 3, 4, 5}
	layout.FirstXref = b.Len()
	b.Raw("xref\n0 6\n0000000000 65535 f\r\n")
	for range firstPage {
		b.Raw("0000000000 00000 n\r\n")
	}
	b.Raw(fmt.Sprintf("trailer\n<< /Size %d /Root 2 0 R /Prev %010d >>\nstartxref\n0\n%%%%EOF\n", 5+opts.Pages, prev.MainXref))

	kids := []string{"4 0 R"}
	for i := 1; i < opts.Pages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", 5+i))
	}
	b.Object(2, "<< /Type /Catalog /Pages 3 0 R >>")
	b.Object(3, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 595 842] /Resources << /ProcSet [/PDF] >> >>", strings.Join(kids, " "), opts.Pages))
	b.Object(4, "<< /Type /Page /Parent 3 0 R /Contents 5 0 R >>")
	b.Stream(5, "", []byte("BT /F1 12 Tf (first) Tj ET"))
	layout.E = b.Len()

	for i := 1; i < opts.Pages; i++ {
		b.Object(5+i, "<< /Type /Page /Parent 3 0 R /Rotate 90 >>")
	}

	layout.MainXref = b.Len()
	b.Raw(fmt.Sprintf("xref\n0 %d\n0000000000 65535 f\r\n", 5+opts.Pages))
	for n := 1; n < 5+opts.Pages; n++ {
		b.Raw(fmt.Sprintf("%010d 00000 n\r\n", b.Offset(n)))
	}
	b.Raw(fmt.Sprintf("trailer\n<< /Size %d /Root 2 0 R >>\n", 5+opts.Pages))
	b.Raw(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", layout.FirstXref))

	data := b.Bytes()
	// Fill the first-page table now that the object offsets are known
	table := []byte("xref\n0 6\n0000000000 65535 f\r\n")
	for _, n := range firstPage {
		table = append(table, fmt.Sprintf("%010d 00000 n\r\n", b.Offset(n))...)
	}
	copy(data[layout.FirstXref:], table)
	return data, layout
}
