package pdfrenderer

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"

	"github.com/drummonds/pdfview/viewer"
)

// annotFlagHidden is bit 2 of the annotation flags.
const annotFlagHidden = 1 << 1

// maxNameTreeDepth bounds name tree recursion in malformed files.
const maxNameTreeDepth = 32

// textIndex reads text, annotations and link targets. The parser caches
// objects internally and is not safe for concurrent use.
type textIndex struct {
	mu           sync.Mutex
	reader       *pdf.Reader
	fingerprints []string
}

// recoverParse turns a parser panic on a malformed file into an error.
func recoverParse(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("malformed PDF: %v", r)
	}
}

func openTextIndex(data []byte, password *string) (t *textIndex, err error) {
	defer recoverParse(&err)
	r, err := openReader(data, password)
	if err != nil {
		return nil, err
	}
	return &textIndex{reader: r}, nil
}

func openReader(data []byte, password *string) (*pdf.Reader, error) {
	ra := bytes.NewReader(data)
	if password == nil {
		return pdf.NewReader(ra, int64(len(data)))
	}
	tried := false
	return pdf.NewReaderEncrypted(ra, int64(len(data)), func() string {
		if tried {
			return ""
		}
		tried = true
		return *password
	})
}

func (t *textIndex) page(n int) (pdf.Page, error) {
	if n < 1 || n > t.reader.NumPage() {
		return pdf.Page{}, fmt.Errorf("page %d out of range", n)
	}
	p := t.reader.Page(n)
	if p.V.IsNull() {
		return pdf.Page{}, fmt.Errorf("page %d not found", n)
	}
	return p, nil
}

func (t *textIndex) textRuns(n int) (runs []viewer.TextRun, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer recoverParse(&err)
	p, err := t.page(n)
	if err != nil {
		return nil, err
	}
	return mergeGlyphs(p.Content().Text), nil
}

// mergeGlyphs joins consecutive glyphs that share a font and baseline into
// runs. A horizontal gap wider than a quarter of the font size starts a new
// run.
func mergeGlyphs(glyphs []pdf.Text) []viewer.TextRun {
	var runs []viewer.TextRun
	var cur *viewer.TextRun
	var end float64
	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = norm.NFC.String(cur.Text)
		if strings.TrimSpace(cur.Text) != "" {
			runs = append(runs, *cur)
		}
		cur = nil
	}
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		if cur != nil && g.Font == cur.FontName && g.FontSize == cur.FontSize &&
			math.Abs(g.Y-cur.Y) < 0.5 && g.X >= end-0.5 && g.X-end <= g.FontSize/4 {
			cur.Text += g.S
			end = g.X + g.W
			cur.Width = end - cur.X
			continue
		}
		flush()
		cur = &viewer.TextRun{Text: g.S, X: g.X, Y: g.Y, Width: g.W, FontSize: g.FontSize, FontName: g.Font}
		end = g.X + g.W
	}
	flush()
	return runs
}

func (t *textIndex) annotations(n int) (out []viewer.Annotation, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer recoverParse(&err)
	p, err := t.page(n)
	if err != nil {
		return nil, err
	}
	annots := p.V.Key("Annots")
	for i := 0; i < annots.Len(); i++ {
		a := annots.Index(i)
		if a.Kind() != pdf.Dict {
			continue
		}
		rect := a.Key("Rect")
		if rect.Len() != 4 {
			continue
		}
		x1, y1, x2, y2 := rect.Index(0).Float64(), rect.Index(1).Float64(), rect.Index(2).Float64(), rect.Index(3).Float64()
		ann := viewer.Annotation{
			ID:       fmt.Sprintf("p%d-a%d", n, i),
			Subtype:  a.Key("Subtype").Name(),
			Rect:     [4]float64{math.Min(x1, x2), math.Min(y1, y2), math.Max(x1, x2), math.Max(y1, y2)},
			Contents: norm.NFC.String(a.Key("Contents").Text()),
			Icon:     a.Key("Name").Name(),
			Hidden:   a.Key("F").Int64()&annotFlagHidden != 0,
		}
		if ann.Subtype == "Link" {
			action := a.Key("A")
			switch action.Key("S").Name() {
			case "URI":
				ann.URL = action.Key("URI").RawString()
			case "GoTo":
				ann.Dest = t.destination(action.Key("D"))
			}
			if d := a.Key("Dest"); !d.IsNull() {
				ann.Dest = t.destination(d)
			}
		}
		out = append(out, ann)
	}
	return out, nil
}

// destination converts a destination object. Page references become
// fingerprints of the referenced page dictionary.
func (t *textIndex) destination(v pdf.Value) *viewer.Destination {
	switch v.Kind() {
	case pdf.Name:
		return &viewer.Destination{Name: v.Name()}
	case pdf.String:
		return &viewer.Destination{Name: v.RawString()}
	case pdf.Dict:
		return t.destination(v.Key("D"))
	case pdf.Array:
		if v.Len() == 0 {
			return nil
		}
		first := v.Index(0)
		switch first.Kind() {
		case pdf.Integer:
			return &viewer.Destination{Page: int(first.Int64()) + 1}
		case pdf.Dict:
			return &viewer.Destination{Ref: first.String()}
		}
	}
	return nil
}

func (t *textIndex) resolve(dest viewer.Destination) (page int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer recoverParse(&err)
	return t.resolveLocked(dest, 0)
}

func (t *textIndex) resolveLocked(dest viewer.Destination, depth int) (int, error) {
	switch {
	case dest.Name != "":
		if depth > 0 {
			return 0, fmt.Errorf("named destination %q refers to another name", dest.Name)
		}
		v := t.named(dest.Name)
		if v.IsNull() {
			return 0, fmt.Errorf("unknown named destination %q", dest.Name)
		}
		target := t.destination(v)
		if target == nil {
			return 0, fmt.Errorf("named destination %q is malformed", dest.Name)
		}
		return t.resolveLocked(*target, depth+1)
	case dest.Ref != "":
		if t.fingerprints == nil {
			t.fingerprints = make([]string, t.reader.NumPage())
			for i := range t.fingerprints {
				t.fingerprints[i] = t.reader.Page(i + 1).V.String()
			}
		}
		for i, fp := range t.fingerprints {
			if fp == dest.Ref {
				return i + 1, nil
			}
		}
		return 0, fmt.Errorf("link target is not a page of this document")
	case dest.Page > 0:
		return dest.Page, nil
	}
	return 0, fmt.Errorf("empty link destination")
}

// named looks a destination name up in the catalog's Dests dictionary and
// then in the Dests name tree.
func (t *textIndex) named(name string) pdf.Value {
	root := t.reader.Trailer().Key("Root")
	if v := root.Key("Dests").Key(name); !v.IsNull() {
		return v
	}
	return lookupNameTree(root.Key("Names").Key("Dests"), name, 0)
}

func lookupNameTree(node pdf.Value, name string, depth int) pdf.Value {
	if node.IsNull() || depth > maxNameTreeDepth {
		return pdf.Value{}
	}
	names := node.Key("Names")
	for i := 0; i+1 < names.Len(); i += 2 {
		if names.Index(i).RawString() == name {
			return names.Index(i + 1)
		}
	}
	kids := node.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		kid := kids.Index(i)
		if limits := kid.Key("Limits"); limits.Len() == 2 {
			if name < limits.Index(0).RawString() || name > limits.Index(1).RawString() {
				continue
			}
		}
		if v := lookupNameTree(kid, name, depth+1); !v.IsNull() {
			return v
		}
	}
	return pdf.Value{}
}

// Info is document metadata read at upload time.
type Info struct {
	Pages     int
	Title     string
	Author    string
	Encrypted bool
}

// Inspect reads metadata without rasterising. Encrypted documents report
// only that they are encrypted.
func Inspect(data []byte) (info Info, err error) {
	defer recoverParse(&err)
	r, err := openReader(data, nil)
	if err != nil {
		if err == pdf.ErrInvalidPassword {
			return Info{Encrypted: true}, nil
		}
		return Info{}, err
	}
	meta := r.Trailer().Key("Info")
	return Info{
		Pages:  r.NumPage(),
		Title:  norm.NFC.String(strings.TrimSpace(meta.Key("Title").Text())),
		Author: norm.NFC.String(strings.TrimSpace(meta.Key("Author").Text())),
	}, nil
}
