package util

import (
	"strings"
	"testing"
)

func TestStorageKeyStableAndPrefixed(t *testing.T) {
	a := StorageKey("bytes:img", "https://h/pages/1/image")
	b := StorageKey("bytes:img", "https://h/pages/1/image")
	c := StorageKey("bytes:img", "https://h/pages/2/image")
	if a != b {
		t.Fatalf("same url produced different keys: %q vs %q", a, b)
	}
	if a == c {
		t.Fatalf("different urls collided: %q", a)
	}
	if !strings.HasPrefix(a, "bytes:img:") || len(a) != len("bytes:img:")+32 {
		t.Fatalf("unexpected key shape %q", a)
	}
}
