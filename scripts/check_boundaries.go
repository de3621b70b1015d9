package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "votebot"

// applicationLibraries are the third-party packages application code may use.
var applicationLibraries = []string{
	"golang.org/x/sync",
	"golang.org/x/text",
}

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// sourceFile is one non-test file under contexts/<context>/<module>/.
type sourceFile struct {
	path   string
	module string // import path of the owning bounded-context module
	layer  string // domain, ports, application, adapters, transport or "" for the module root
	sub    string // adapter or transport package directly under the layer
}

func main() {
	violations := collectViolations("contexts")
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Import < b.Import
	})

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func collectViolations(root string) []violation {
	var violations []violation
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		file, ok := classify(filepath.ToSlash(path))
		if !ok {
			return nil
		}
		violations = append(violations, checkFile(file)...)
		return nil
	})
	return violations
}

func classify(path string) (sourceFile, bool) {
	parts := strings.Split(path, "/")
	if len(parts) < 4 || parts[0] != "contexts" {
		return sourceFile{}, false
	}
	file := sourceFile{
		path:   path,
		module: fmt.Sprintf("%s/contexts/%s/%s", modulePath, parts[1], parts[2]),
	}
	if len(parts) > 4 {
		file.layer = parts[3]
	}
	if len(parts) > 5 {
		file.sub = parts[4]
	}
	return file, true
}

func checkFile(file sourceFile) []violation {
	fset := token.NewFileSet()
	parsed, err := parser.ParseFile(fset, file.path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: file.path, Line: 1, Rule: "file must parse"}}
	}

	var violations []violation
	for _, imp := range parsed.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line
		for _, rule := range rulesFor(file, importPath) {
			violations = append(violations, violation{
				File:   file.path,
				Line:   line,
				Import: importPath,
				Rule:   rule,
			})
		}
	}
	return violations
}

// rulesFor returns every rule importPath breaks when imported from file.
func rulesFor(file sourceFile, importPath string) []string {
	var broken []string
	if hasPrefix(importPath, modulePath+"/contexts") && !hasPrefix(importPath, file.module) {
		broken = append(broken, "cross-module imports are forbidden")
	}
	if hasPrefix(importPath, modulePath+"/internal") || hasPrefix(importPath, modulePath+"/cmd") {
		broken = append(broken, "contexts must not import runtime infrastructure")
	}

	own := func(layers ...string) bool {
		for _, layer := range layers {
			if hasPrefix(importPath, file.module+"/"+layer) {
				return true
			}
		}
		return false
	}

	switch file.layer {
	case "domain":
		if !isStdlib(importPath) && !own("domain") {
			broken = append(broken, "domain may import only the standard library and domain")
		}
	case "ports":
		if !isStdlib(importPath) && !own("domain", "ports") {
			broken = append(broken, "ports may import only the standard library and domain")
		}
	case "application":
		if own("adapters", "transport") {
			broken = append(broken, "application must not import adapters or transport")
		} else if !isStdlib(importPath) && !own("application", "domain", "ports") && !isAllowed(importPath, applicationLibraries) {
			broken = append(broken, "application import is outside explicit allowlist")
		}
	case "adapters":
		if sibling, ok := adapterOf(file.module, importPath); ok && sibling != file.sub {
			broken = append(broken, "adapters must not import sibling adapters")
		}
	case "transport":
		if !isStdlib(importPath) && !own("transport") {
			broken = append(broken, "transport may import only the standard library")
		}
	}
	return broken
}

func adapterOf(module string, importPath string) (string, bool) {
	prefix := module + "/adapters/"
	if !strings.HasPrefix(importPath, prefix) {
		return "", false
	}
	name, _, _ := strings.Cut(strings.TrimPrefix(importPath, prefix), "/")
	return name, name != ""
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isAllowed(importPath string, allowedPrefixes []string) bool {
	for _, p := range allowedPrefixes {
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func isStdlib(importPath string) bool {
	if hasPrefix(importPath, modulePath) {
		return false
	}
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}
