package reader

import (
	"fmt"
	"strings"
	"time"

	"github.com/tsawler/gutenberg/core"
)

// Info is the document information dictionary with its text strings decoded.
type Info struct {
	Title        string
	Author       string
	Subject      string
	Keywords     []string
	Creator      string
	Producer     string
	CreationDate time.Time // zero when absent or unparsable
	ModDate      time.Time
	Trapped      string            // True, False or Unknown
	Custom       map[string]string // non-standard string entries
}

var standardInfoKeys = map[string]bool{
	"Title":        true,
	"Author":       true,
	"Subject":      true,
	"Keywords":     true,
	"Creator":      true,
	"Producer":     true,
	"CreationDate": true,
	"ModDate":      true,
	"Trapped":      true,
}

// Info returns the document information dictionary referenced by the
// trailer. A document without one returns a zero Info and no error.
func (d *Document) Info() (Info, error) {
	info := Info{Custom: make(map[string]string)}

	obj := d.Trailer().Get("Info")
	if obj == nil {
		return info, nil
	}
	resolved, err := d.Resolve(obj)
	if err != nil {
		return info, fmt.Errorf("failed to resolve info: %w", err)
	}
	if core.IsNull(resolved) {
		return info, nil
	}
	dict, ok := resolved.(core.Dict)
	if !ok {
		return info, fmt.Errorf("info is not a dictionary: %v", resolved.Type())
	}

	text := func(key string) string {
		v, err := d.Resolve(dict.Get(key))
		if err != nil {
			return ""
		}
		s, ok := v.(core.String)
		if !ok {
			return ""
		}
		return s.Text()
	}
	date := func(key string) time.Time {
		v, err := d.Resolve(dict.Get(key))
		if err != nil {
			return time.Time{}
		}
		s, ok := v.(core.String)
		if !ok {
			return time.Time{}
		}
		t, err := s.Date()
		if err != nil {
			d.logger.Debug("unparsable info date", "key", key, "value", string(s), "error", err)
			return time.Time{}
		}
		return t
	}

	info.Title = text("Title")
	info.Author = text("Author")
	info.Subject = text("Subject")
	info.Creator = text("Creator")
	info.Producer = text("Producer")
	info.CreationDate = date("CreationDate")
	info.ModDate = date("ModDate")
	if name, ok := dict.GetName("Trapped"); ok {
		info.Trapped = string(name)
	}

	// Keywords are commonly separated by commas or semicolons
	for _, kw := range strings.FieldsFunc(text("Keywords"), func(r rune) bool { return r == ',' || r == ';' }) {
		if kw = strings.TrimSpace(kw); kw != "" {
			info.Keywords = append(info.Keywords, kw)
		}
	}

	for _, key := range dict.Keys() {
		if standardInfoKeys[key] {
			continue
		}
		if s := text(key); s != "" {
			info.Custom[key] = s
		}
	}
	return info, nil
}
