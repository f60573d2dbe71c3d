// Package main exports the Piazza API document and checks it against a
// published baseline so clients are not broken by removed routes.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"

	_ "piazza/docs"

	"github.com/swaggo/swag"
	"gopkg.in/yaml.v3"
)

var httpMethods = []string{"get", "put", "post", "delete", "patch", "head", "options"}

// surface is the set of paths, operations and documented response codes a
// client can rely on. Operations are keyed "METHOD path".
type surface struct {
	paths     map[string]bool
	ops       map[string]bool
	responses map[string][]string
}

func main() {
	log.SetFlags(0)
	out := flag.String("out", "", "write the current API document as YAML to this path")
	baseline := flag.String("check", "", "baseline swagger.yaml to compare the current document against")
	flag.Parse()

	if *out == "" && *baseline == "" {
		fmt.Fprintln(os.Stderr, "usage: apidoc [-out swagger.yaml] [-check baseline.yaml]")
		os.Exit(2)
	}

	doc, err := swag.ReadDoc()
	if err != nil {
		log.Fatalf("render api document: %v", err)
	}

	if *out != "" {
		if err := exportYAML(doc, *out); err != nil {
			log.Fatalf("export api document: %v", err)
		}
		log.Printf("api document written to %s", *out)
	}
	if *baseline == "" {
		return
	}

	raw, err := os.ReadFile(*baseline) // #nosec G304 -- operator-supplied path
	if err != nil {
		log.Fatalf("read baseline: %v", err)
	}
	base, err := parseSurface(raw)
	if err != nil {
		log.Fatalf("parse baseline: %v", err)
	}
	current, err := parseSurface([]byte(doc))
	if err != nil {
		log.Fatalf("parse current document: %v", err)
	}

	if issues := removed(base, current); len(issues) > 0 {
		fmt.Fprintln(os.Stderr, "backward compatibility check failed:")
		for _, issue := range issues {
			fmt.Fprintln(os.Stderr, "-", issue)
		}
		os.Exit(1)
	}
	log.Println("api compatibility check passed")
}

// exportYAML re-encodes the JSON document swag renders as YAML.
func exportYAML(doc, path string) error {
	var tree yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &tree); err != nil {
		return err
	}
	// JSON input leaves flow style on every node; clear it for block output.
	unflow(&tree)
	raw, err := yaml.Marshal(&tree)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func unflow(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	for _, child := range n.Content {
		unflow(child)
	}
}

// parseSurface reads a swagger document in YAML or JSON form.
func parseSurface(raw []byte) (surface, error) {
	var doc struct {
		Paths map[string]map[string]yaml.Node `yaml:"paths"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return surface{}, err
	}
	if doc.Paths == nil {
		return surface{}, errors.New("document has no paths")
	}

	s := surface{
		paths:     make(map[string]bool),
		ops:       make(map[string]bool),
		responses: make(map[string][]string),
	}
	for path, item := range doc.Paths {
		for method, node := range item {
			method = strings.ToLower(method)
			if !slices.Contains(httpMethods, method) {
				continue
			}
			var op struct {
				Responses map[string]yaml.Node `yaml:"responses"`
			}
			if err := node.Decode(&op); err != nil {
				return surface{}, fmt.Errorf("%s %s: %w", method, path, err)
			}

			key := strings.ToUpper(method) + " " + path
			s.paths[path] = true
			s.ops[key] = true
			for code := range op.Responses {
				s.responses[key] = append(s.responses[key], strings.ToUpper(code))
			}
		}
	}
	return s, nil
}

// removed lists what base offers that current no longer does, sorted.
func removed(base, current surface) []string {
	var issues []string
	for path := range base.paths {
		if !current.paths[path] {
			issues = append(issues, "removed path: "+path)
		}
	}
	for op := range base.ops {
		path := op[strings.IndexByte(op, ' ')+1:]
		if !current.paths[path] {
			continue
		}
		if !current.ops[op] {
			issues = append(issues, "removed operation: "+op)
			continue
		}
		for _, code := range base.responses[op] {
			if !slices.Contains(current.responses[op], code) {
				issues = append(issues, fmt.Sprintf("removed response code: %s -> %s", op, code))
			}
		}
	}
	slices.Sort(issues)
	return issues
}
