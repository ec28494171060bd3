package docs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestHTMLText(t *testing.T) {
	in := `<html><head><title>x</title><style>p{}</style></head>
<body><h1>Orders</h1><!-- hidden --><p>Freight   is in <b>USD</b>.</p>
<script>alert(1)</script><ul><li>one</li><li>two</li></ul></body></html>`
	got, err := HTMLText(strings.NewReader(in))
	if err != nil {
		t.Fatalf("HTMLText: %v", err)
	}
	want := "Orders\nFreight is in USD.\none\ntwo"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLoad_ByExtension(t *testing.T) {
	txt := writeFile(t, "notes.md", "  freight is charged per order \n")
	if got, err := Load(txt); err != nil || got != "freight is charged per order" {
		t.Errorf("text: %q %v", got, err)
	}

	page := writeFile(t, "page.HTML", "<p>hello <i>there</i></p>")
	if got, err := Load(page); err != nil || got != "hello there" {
		t.Errorf("html: %q %v", got, err)
	}
}

func TestLoad_Errors(t *testing.T) {
	bin := writeFile(t, "blob.bin", "\xff\xfe\xfd")
	if _, err := Load(bin); !errors.Is(err, ErrUnsupported) {
		t.Errorf("binary: err = %v, want ErrUnsupported", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("missing file should fail")
	}
	bad := writeFile(t, "broken.pdf", "not a pdf")
	if _, err := Load(bad); err == nil {
		t.Error("broken pdf should fail")
	}
}

func TestSplit(t *testing.T) {
	if got := Split("   ", 10); got != nil {
		t.Errorf("blank text = %v, want nil", got)
	}
	if got := Split("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("short text = %v", got)
	}

	got := Split("aaaa\nbbbb\ncccc", 9)
	want := []string{"aaaa\nbbbb", "cccc"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}

	got = Split("one two three four", 8)
	for _, c := range got {
		if len(c) > 8 {
			t.Errorf("chunk %q exceeds size", c)
		}
	}
	if strings.Join(got, " ") != "one two three four" {
		t.Errorf("words lost: %q", got)
	}

	got = Split("abcdefghij", 4)
	if strings.Join(got, "") != "abcdefghij" || len(got) != 3 {
		t.Errorf("long word = %q", got)
	}
}

func TestSplit_MultibyteWords(t *testing.T) {
	text := strings.Repeat("国内生产总值", 10)
	got := Split(text, 10)
	for i, c := range got {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d = %q is not valid UTF-8", i, c)
		}
		if len(c) > 10 {
			t.Errorf("chunk %d = %q exceeds size", i, c)
		}
	}
	if strings.Join(got, "") != text {
		t.Errorf("text lost: %q", got)
	}
	if got[0] != "国内生" {
		t.Errorf("first chunk = %q, want 国内生", got[0])
	}

	// A rune wider than the chunk size is kept whole.
	got = Split("生产", 2)
	if len(got) != 2 || got[0] != "生" || got[1] != "产" {
		t.Errorf("tiny size = %q", got)
	}
}

func TestLoadAll(t *testing.T) {
	a := writeFile(t, "a.txt", "first document")
	b := writeFile(t, "b.html", "<p>second</p><p>document</p>")
	got, err := LoadAll([]string{a, b}, 0)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(got) != 2 || got[1] != "second\ndocument" {
		t.Errorf("LoadAll = %q", got)
	}
}
