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

const modulePath = "tiof"

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// layerRule constrains what one layer of a service may import. Allowed
// entries are relative to the service root unless they start with the
// module path. A layer with thirdParty false may only add the stdlib.
type layerRule struct {
	allowed    []string
	thirdParty bool
}

var layerRules = map[string]layerRule{
	"domain": {
		allowed: []string{"domain"},
	},
	"ports": {
		allowed: []string{"domain", "ports", modulePath + "/contracts"},
	},
	"application": {
		allowed: []string{"application", "domain", "ports", modulePath + "/contracts"},
	},
	"transport": {
		allowed:    []string{"transport"},
		thirdParty: true,
	},
}

// contextConsumers are the only platform packages allowed to depend on a
// bounded context; everything else under internal/platform stays generic.
var contextConsumers = []string{
	"internal/app",
	"internal/platform/httpserver",
}

func main() {
	violations := append(collectContextViolations("contexts"), collectPlatformViolations("internal/platform")...)
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File != violations[j].File {
			return violations[i].File < violations[j].File
		}
		if violations[i].Line != violations[j].Line {
			return violations[i].Line < violations[j].Line
		}
		return violations[i].Import < violations[j].Import
	})

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func collectContextViolations(root string) []violation {
	var violations []violation
	walkSources(root, func(path string, normalized string) {
		parts := strings.Split(normalized, "/")
		if len(parts) < 4 || parts[0] != "contexts" {
			return
		}
		serviceRoot := fmt.Sprintf("%s/contexts/%s/%s", modulePath, parts[1], parts[2])
		layer := parts[3]

		for _, imp := range parseImports(path, normalized, &violations) {
			if strings.HasPrefix(imp.path, modulePath+"/contexts/") && !hasPrefix(imp.path, serviceRoot) {
				violations = append(violations, imp.violation("cross-module imports are forbidden"))
			}
			rule, ok := layerRules[layer]
			if !ok {
				continue
			}
			if isStdlib(imp.path) {
				continue
			}
			if !strings.HasPrefix(imp.path, modulePath+"/") {
				if !rule.thirdParty {
					violations = append(violations, imp.violation(layer+" must not import third-party packages"))
				}
				continue
			}
			if !isAllowed(imp.path, resolve(serviceRoot, rule.allowed)) {
				violations = append(violations, imp.violation(layer+" import is outside explicit allowlist"))
			}
		}
	})
	return violations
}

func collectPlatformViolations(root string) []violation {
	var violations []violation
	walkSources(root, func(path string, normalized string) {
		if isAllowed(normalized, contextConsumers) {
			return
		}
		for _, imp := range parseImports(path, normalized, &violations) {
			if strings.HasPrefix(imp.path, modulePath+"/contexts/") {
				violations = append(violations, imp.violation("platform packages must not depend on bounded contexts"))
			}
		}
	})
	return violations
}

func walkSources(root string, visit func(path string, normalized string)) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		visit(path, filepath.ToSlash(path))
		return nil
	})
}

type sourceImport struct {
	file string
	line int
	path string
}

func (i sourceImport) violation(rule string) violation {
	return violation{File: i.file, Line: i.line, Import: i.path, Rule: rule}
}

func parseImports(path string, normalized string, violations *[]violation) []sourceImport {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		*violations = append(*violations, violation{File: normalized, Line: 1, Rule: "file must parse"})
		return nil
	}

	imports := make([]sourceImport, 0, len(file.Imports))
	for _, imp := range file.Imports {
		imports = append(imports, sourceImport{
			file: normalized,
			line: fset.Position(imp.Pos()).Line,
			path: strings.Trim(imp.Path.Value, "\""),
		})
	}
	return imports
}

func resolve(serviceRoot string, allowed []string) []string {
	resolved := make([]string, 0, len(allowed))
	for _, entry := range allowed {
		if strings.HasPrefix(entry, modulePath+"/") {
			resolved = append(resolved, entry)
			continue
		}
		resolved = append(resolved, serviceRoot+"/"+entry)
	}
	return resolved
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
	first := strings.SplitN(importPath, "/", 2)[0]
	return !strings.Contains(first, ".") && first != modulePath
}
