// Package testutil provides index fixtures for tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fastmerger/internal/bindeps"
)

// Class describes one class fed to a fixture builder.
type Class struct {
	Name        string
	Access      int32
	Super       string
	Interfaces  []string
	Annotations []string
	Deps        []string
}

// SampleClasses is a small graph with a chain, a cycle and JDK leaves:
//
//	com/app/Main -> com/app/Service -> com/app/Repo -> java/sql/Connection
//	com/app/Service -> com/app/Config
//	com/app/Cycle <-> com/app/Loop
func SampleClasses() []Class {
	return []Class{
		{
			Name:  "com/app/Main",
			Super: "java/lang/Object", Access: 0x21,
			Deps: []string{"com/app/Service", "java/lang/String"},
		},
		{
			Name:  "com/app/Service",
			Super: "java/lang/Object", Access: 0x21,
			Interfaces:  []string{"java/lang/Runnable"},
			Annotations: []string{"org/springframework/stereotype/Service"},
			Deps:        []string{"com/app/Repo", "com/app/Config"},
		},
		{
			Name:  "com/app/Repo",
			Super: "java/lang/Object", Access: 0x601,
			Deps: []string{"java/sql/Connection"},
		},
		{
			Name:  "com/app/Config",
			Super: "java/lang/Object", Access: 0x21,
		},
		{
			Name:  "com/app/Cycle",
			Super: "java/lang/Object", Access: 0x21,
			Deps: []string{"com/app/Loop"},
		},
		{
			Name:  "com/app/Loop",
			Super: "java/lang/Object", Access: 0x21,
			Deps: []string{"com/app/Cycle"},
		},
	}
}

// Collect feeds classes into b through its collectors.
func Collect(t testing.TB, b *bindeps.Builder, classes []Class) {
	t.Helper()
	for _, c := range classes {
		col := b.NewClassCollector()
		if err := col.AcceptClassInfo(c.Name, c.Access, c.Super); err != nil {
			t.Fatalf("class info %s: %v", c.Name, err)
		}
		for _, i := range c.Interfaces {
			if err := col.AcceptInterface(c.Name, i); err != nil {
				t.Fatalf("interface %s: %v", i, err)
			}
		}
		for _, a := range c.Annotations {
			if err := col.AcceptAnnotation(c.Name, a); err != nil {
				t.Fatalf("annotation %s: %v", a, err)
			}
		}
		for _, d := range c.Deps {
			if err := col.AcceptClassDependency(c.Name, d); err != nil {
				t.Fatalf("dependency %s: %v", d, err)
			}
		}
		info, err := col.Release()
		if err != nil {
			t.Fatalf("release %s: %v", c.Name, err)
		}
		if err := b.Add(info); err != nil {
			t.Fatalf("add %s: %v", c.Name, err)
		}
	}
}

// BuildIndex writes classes to a new index file in a test temp directory
// and returns its path.
func BuildIndex(t testing.TB, classes []Class) string {
	t.Helper()
	b := bindeps.NewBuilder(bindeps.BuilderOptions{})
	Collect(t, b, classes)
	path := filepath.Join(t.TempDir(), "fixture.bindeps")
	if _, err := b.Build(context.Background(), path); err != nil {
		t.Fatalf("build fixture: %v", err)
	}
	return path
}

// OpenIndex builds classes and opens the result. The reader is closed when
// the test ends.
func OpenIndex(t testing.TB, classes []Class, opts ...bindeps.ReaderOption) *bindeps.Reader {
	t.Helper()
	r, err := bindeps.Open(BuildIndex(t, classes), opts...)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

// WriteFile writes content to a file in the given directory.
func WriteFile(t testing.TB, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}
