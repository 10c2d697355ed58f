// Package testutil provides shared helpers for tests that enforce the
// repository's layering rules: which packages may import which.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// AssertNoTransitiveDependency fails the test when `go list -deps pattern`
// reports a package path matching the forbidden predicate. Use it to keep a
// package's full dependency closure inside an allowed set. The reason string
// is appended to the failure message.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	offenders, out, err := transitiveOffenders(pattern, forbidden)
	if err != nil {
		t.Fatalf("go list -deps %s: %v\n%s", pattern, err, out)
	}
	report(t, "transitive dependency", reason, offenders)
}

// AssertNoDirectImports parses every non-test .go file in dir (usually "."
// from inside the package under guard) and fails when an import path matches
// the forbidden predicate. Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	offenders, err := scanImports(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	report(t, "direct import", reason, offenders)
}

// InternalImportForbidden matches import paths under any internal/ tree.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// InfraImportForbidden matches import paths under internal/infra, the driver
// layer that only its facade packages may bind to.
func InfraImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/infra/")
}

// ThirdPartyImportForbidden matches import paths belonging to modules outside
// the standard library and outside this repository. A dot in the first path
// element marks an external module, the same convention the toolchain uses.
func ThirdPartyImportForbidden(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return strings.Contains(first, ".")
}

var runGoList = func(pattern string) ([]byte, error) {
	cmd := exec.Command("go", "list", "-deps", pattern)
	return cmd.CombinedOutput()
}

func transitiveOffenders(pattern string, forbidden func(path string) bool) ([]string, []byte, error) {
	out, err := runGoList(pattern)
	if err != nil {
		return nil, out, err
	}
	var offenders []string
	for _, line := range strings.Split(string(out), "\n") {
		path := strings.TrimSpace(line)
		if path != "" && forbidden(path) {
			offenders = append(offenders, path)
		}
	}
	return offenders, out, nil
}

func scanImports(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var offenders []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		parsed, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range parsed.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				offenders = append(offenders, path+" (in "+name+")")
			}
		}
	}
	return offenders, nil
}

type fatalReporter interface {
	Fatalf(format string, args ...any)
}

func report(t fatalReporter, kind, reason string, offenders []string) {
	if len(offenders) > 0 {
		t.Fatalf("forbidden %s (%s):\n%s", kind, reason, strings.Join(offenders, "\n"))
	}
}
