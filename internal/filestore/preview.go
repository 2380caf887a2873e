package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// previewLimit caps the amount of text returned by Preview.
const previewLimit = 4 << 10

var ErrNoPreview = errors.New("no preview available for this file type")

// Preview is a short text rendition of a stored file.
type Preview struct {
	Name      string   `json:"name"`
	Subfolder string   `json:"subfolder"`
	Type      Category `json:"type"`
	Pages     int      `json:"pages,omitempty"`
	Text      string   `json:"text"`
	Truncated bool     `json:"truncated"`
}

// Preview returns up to 4 KiB of text from a text, html or pdf file.
func (s *Store) Preview(ctx context.Context, sub, name string) (Preview, error) {
	f, err := s.Stat(sub, name)
	if err != nil {
		return Preview{}, err
	}
	p := Preview{Name: f.Name, Subfolder: f.Subfolder, Type: f.Type}
	path, _ := s.path(sub, name)

	switch {
	case f.Type == CategoryText || f.Type == CategoryHTML:
		fh, _, err := s.Open(sub, name)
		if err != nil {
			return Preview{}, err
		}
		defer fh.Close()
		buf, err := io.ReadAll(io.LimitReader(fh, previewLimit+1))
		if err != nil {
			return Preview{}, fmt.Errorf("reading %s: %w", name, err)
		}
		p.Text, p.Truncated = clip(string(buf))
	case extension(name) == "pdf":
		text, pages, err := pdfText(ctx, path)
		if err != nil {
			return Preview{}, err
		}
		p.Pages = pages
		p.Text, p.Truncated = clip(text)
	default:
		return Preview{}, ErrNoPreview
	}
	return p, nil
}

func pdfText(ctx context.Context, path string) (string, int, error) {
	fh, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening pdf: %w", err)
	}
	defer fh.Close()

	var sb strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages && sb.Len() <= previewLimit; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("extracting page %d: %w", i, err)
		}
		sb.WriteString(text)
	}
	return sb.String(), pages, nil
}

// clip trims s to previewLimit bytes without splitting a rune.
func clip(s string) (string, bool) {
	if len(s) <= previewLimit {
		return s, false
	}
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
