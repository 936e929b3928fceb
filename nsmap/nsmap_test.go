package nsmap

import "testing"

func TestInsertLookupRemove(t *testing.T) {
	ns := New()
	if !ns.Insert(1, "a") {
		t.Fatalf("insert should succeed on a fresh key")
	}
	if ns.Insert(1, "b") {
		t.Fatalf("insert should fail on a duplicate key")
	}
	if got := ns.Lookup(1); got != "a" {
		t.Fatalf("lookup = %v, want a", got)
	}

	// Remove with the wrong value must not delete.
	ns.Remove(1, "b")
	if got := ns.Lookup(1); got != "a" {
		t.Fatalf("remove with stale value deleted the entry")
	}

	ns.Remove(1, "a")
	if got := ns.Lookup(1); got != nil {
		t.Fatalf("lookup after remove = %v, want nil", got)
	}
}

func TestEnumerateFindsAcceptedEntry(t *testing.T) {
	ns := New()
	ns.Insert(1, "a")
	ns.Insert(2, "b")
	ns.Insert(3, "c")

	got := ns.Enumerate(func(k uint64, v interface{}) bool {
		return v.(string) == "b"
	})
	if got != "b" {
		t.Fatalf("enumerate = %v, want b", got)
	}
}

func TestEnumerateNoMatch(t *testing.T) {
	ns := New()
	ns.Insert(1, "a")
	got := ns.Enumerate(func(k uint64, v interface{}) bool { return false })
	if got != nil {
		t.Fatalf("enumerate with no match = %v, want nil", got)
	}
}
