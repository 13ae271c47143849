package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

const modulePrefix = "bgwatch/"

// layerRule forbids importer packages under one prefix from importing another.
type layerRule struct {
	importer string
	imported string
	reason   string
}

var layerRules = []layerRule{
	{importer: "pkg/", imported: "internal/", reason: "pkg/* must not import internal/*"},
	{importer: "pkg/", imported: "modules/", reason: "pkg/* must not import modules/*"},
	{importer: "internal/kernel", imported: "internal/driver", reason: "internal/kernel must not import internal/driver/*"},
	{importer: "internal/kernel", imported: "modules/", reason: "internal/kernel must not import modules/*"},
	{importer: "modules/", imported: "internal/", reason: "modules/* must not import internal/*"},
}

type listedPackage struct {
	ImportPath   string
	Imports      []string
	TestImports  []string
	XTestImports []string
}

func main() {
	packages, err := listPackages()
	if err != nil {
		fmt.Fprintf(os.Stderr, "arch-check: %v\n", err)
		os.Exit(1)
	}

	violations := collectViolations(packages)
	if len(violations) == 0 {
		_, _ = fmt.Fprintf(os.Stdout, "arch-check: %d packages passed\n", len(packages))
		return
	}

	_, _ = fmt.Fprintf(os.Stdout, "arch-check: %d architecture violations:\n", len(violations))
	for _, violation := range violations {
		_, _ = fmt.Fprintf(os.Stdout, "  - %s\n", violation)
	}
	os.Exit(1)
}

func listPackages() ([]listedPackage, error) {
	cmd := exec.Command("go", "list", "-json", "-test", "./...")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("go list -json -test ./...: %w", err)
	}

	return decodePackages(stdout.Bytes())
}

// decodePackages reads the concatenated JSON objects printed by go list.
func decodePackages(data []byte) ([]listedPackage, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	result := make([]listedPackage, 0, 16)
	for {
		var pkg listedPackage
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode go list output: %w", err)
		}
		if pkg.ImportPath == "" {
			continue
		}
		result = append(result, pkg)
	}

	return result, nil
}

func collectViolations(packages []listedPackage) []string {
	found := make(map[string]struct{})

	for _, pkg := range packages {
		importer := basePackagePath(pkg.ImportPath)
		imports := append([]string{}, pkg.Imports...)
		imports = append(imports, pkg.TestImports...)
		imports = append(imports, pkg.XTestImports...)

		for _, imported := range imports {
			reason := violationReason(importer, basePackagePath(imported))
			if reason == "" {
				continue
			}
			entry := fmt.Sprintf("%s -> %s (%s)", importer, basePackagePath(imported), reason)
			found[entry] = struct{}{}
		}
	}

	violations := make([]string, 0, len(found))
	for violation := range found {
		violations = append(violations, violation)
	}
	sort.Strings(violations)

	return violations
}

func violationReason(importer, imported string) string {
	for _, rule := range layerRules {
		if strings.HasPrefix(importer, modulePrefix+rule.importer) &&
			strings.HasPrefix(imported, modulePrefix+rule.imported) {
			return rule.reason
		}
	}

	return ""
}

// basePackagePath strips the test variant suffix go list -test adds,
// such as "bgwatch/internal/kernel [bgwatch/internal/kernel.test]".
func basePackagePath(importPath string) string {
	if index := strings.Index(importPath, " ["); index >= 0 {
		return importPath[:index]
	}

	return importPath
}
