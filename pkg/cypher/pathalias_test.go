package cypher

import "testing"

// Internal path aliases allocate sequentially from zero.
func TestPathAliasAllocator(t *testing.T) {
	a := newPathAliasAllocator()
	first := a.Next()
	second := a.Next()
	if first != "__nervus_internal_path_0" {
		t.Fatalf("first alias = %q, want __nervus_internal_path_0", first)
	}
	if second != "__nervus_internal_path_1" {
		t.Fatalf("second alias = %q, want __nervus_internal_path_1", second)
	}
	if a.next != 2 {
		t.Fatalf("counter = %d, want 2", a.next)
	}
}

func TestIsInternalPathAlias(t *testing.T) {
	cases := map[string]bool{
		"__nervus_internal_path_42": true,
		"__nervus_internal_path_0":  true,
		"p":                         false,
		"__nervus_internal_path_":   false,
		"__nervus_internal_path_x":  false,
	}
	for name, want := range cases {
		if got := isInternalPathAlias(name); got != want {
			t.Errorf("isInternalPathAlias(%q) = %v, want %v", name, got, want)
		}
	}
}
