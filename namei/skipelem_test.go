package namei

import "testing"

func TestSkipElem(t *testing.T) {
	cases := []struct {
		path string
		elem string
		rest string
		ok   bool
	}{
		{"a/bb/c", "a", "bb/c", true},
		{"///a//bb", "a", "bb", true},
		{"a", "a", "", true},
		{"", "", "", false},
		{"////", "", "", false},
		{"/a/b", "a", "b", true},
	}
	for _, c := range cases {
		elem, rest, ok := SkipElem(c.path)
		if elem != c.elem || rest != c.rest || ok != c.ok {
			t.Errorf("SkipElem(%q) = (%q, %q, %v), want (%q, %q, %v)",
				c.path, elem, rest, ok, c.elem, c.rest, c.ok)
		}
	}
}

func TestSkipElemTruncatesLongNames(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyz"
	elem, _, ok := SkipElem(long)
	if !ok {
		t.Fatalf("SkipElem should succeed on a long single element")
	}
	if len(elem) != 14 {
		t.Fatalf("elem len = %d, want DIRSIZ (14)", len(elem))
	}
	if elem != long[:14] {
		t.Fatalf("elem = %q, want the first 14 bytes of %q", elem, long)
	}
}
