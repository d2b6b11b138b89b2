package testutil

import (
	"testing"

	"github.com/fastmerger/internal/bindeps"
)

// FullNames resolves entries to their full names.
func FullNames(t testing.TB, entries []*bindeps.StringPoolEntry) []string {
	t.Helper()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		n, err := e.FullName()
		if err != nil {
			t.Fatalf("full name of row %d: %v", e.Index(), err)
		}
		names = append(names, n)
	}
	return names
}

// PoolNames resolves string pool rows to their full names.
func PoolNames(t testing.TB, r *bindeps.Reader, rows []int32) []string {
	t.Helper()
	entries := make([]*bindeps.StringPoolEntry, 0, len(rows))
	for _, row := range rows {
		e, err := r.StringPoolEntry(row)
		if err != nil {
			t.Fatalf("string pool row %d: %v", row, err)
		}
		entries = append(entries, e)
	}
	return FullNames(t, entries)
}

// ClassNames resolves class info rows to the full names of their classes.
func ClassNames(t testing.TB, r *bindeps.Reader, rows []int32) []string {
	t.Helper()
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		cls, err := r.ClassInfoEntry(row)
		if err != nil {
			t.Fatalf("class row %d: %v", row, err)
		}
		names = append(names, PoolNames(t, r, []int32{cls.NameIndex()})...)
	}
	return names
}

// PoolIndex returns the string pool row of fullName or fails the test.
func PoolIndex(t testing.TB, r *bindeps.Reader, fullName string) int32 {
	t.Helper()
	e, err := r.FindStringPoolEntry(fullName)
	if err != nil {
		t.Fatalf("find %s: %v", fullName, err)
	}
	return e.Index()
}

// ClassIndex returns the class info row of the named class or fails the test.
func ClassIndex(t testing.TB, r *bindeps.Reader, name string) int32 {
	t.Helper()
	cls, err := r.FindClass(name)
	if err != nil {
		t.Fatalf("find class %s: %v", name, err)
	}
	return cls.Index()
}
