// Package docs turns files on disk into plain-text training documents.
package docs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// ErrUnsupported is returned for files that are neither PDF, HTML nor text.
var ErrUnsupported = errors.New("unsupported document")

// DefaultChunkSize bounds the size of each document handed to the embedder.
const DefaultChunkSize = 2000

// Load extracts the text of the file at path, picking the reader by
// extension: .pdf, .html/.htm, anything else is read as UTF-8 text.
func Load(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return loadPDF(path)
	case ".html", ".htm":
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		return HTMLText(f)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: %s is not UTF-8 text", ErrUnsupported, path)
	}
	return strings.TrimSpace(string(b)), nil
}

// LoadAll loads every path and splits the texts into chunks of at most
// chunkSize bytes.
func LoadAll(paths []string, chunkSize int) ([]string, error) {
	var out []string
	for _, p := range paths {
		text, err := Load(p)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", p, err)
		}
		out = append(out, Split(text, chunkSize)...)
	}
	return out, nil
}

func loadPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	rd, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return normalizeSpace(string(b)), nil
}

var skippedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "head": true,
	"svg": true, "iframe": true, "template": true,
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true,
	"article": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "pre": true, "blockquote": true, "table": true, "ul": true, "ol": true,
}

// HTMLText returns the visible text of an HTML document with block elements
// on separate lines.
func HTMLText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.CommentNode:
			return
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if skippedTags[n.Data] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			sb.WriteByte('\n')
		}
	}
	walk(doc)
	return normalizeSpace(sb.String()), nil
}

// normalizeSpace collapses runs of blanks inside lines and drops empty lines.
func normalizeSpace(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if f := strings.Fields(line); len(f) > 0 {
			lines = append(lines, strings.Join(f, " "))
		}
	}
	return strings.Join(lines, "\n")
}

// Split cuts text into chunks of at most size bytes, breaking on line
// boundaries where possible. Lines longer than size are cut on word
// boundaries, and single words longer than size are cut on rune boundaries.
func Split(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	add := func(piece, sep string) {
		if cur.Len() > 0 && cur.Len()+len(sep)+len(piece) > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(piece)
	}

	for _, line := range strings.Split(text, "\n") {
		if len(line) <= size {
			add(line, "\n")
			continue
		}
		for _, word := range strings.Fields(line) {
			for len(word) > size {
				flush()
				cut := runeCut(word, size)
				chunks = append(chunks, word[:cut])
				word = word[cut:]
			}
			add(word, " ")
		}
	}
	flush()
	return chunks
}

// runeCut returns the largest prefix length of s not above size that ends on
// a rune boundary, or the first rune's length when that alone exceeds size.
func runeCut(s string, size int) int {
	cut := size
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		_, cut = utf8.DecodeRuneInString(s)
	}
	return cut
}
