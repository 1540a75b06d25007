package declarative

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadOptions configures YAML loading behavior.
type LoadOptions struct {
	AllowUnknownFields bool
}

// Load reads source system documents from a YAML file or from every
// *.yaml / *.yml file below a directory.
func Load(path string) ([]SourceSystemDoc, error) {
	return LoadWithOptions(path, LoadOptions{})
}

// LoadWithOptions is Load with caller-provided loading options.
func LoadWithOptions(path string, opts LoadOptions) ([]SourceSystemDoc, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config path: %w", err)
	}
	if !info.IsDir() {
		return loadFile(path, opts)
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", path, err)
	}
	sort.Strings(files)

	var docs []SourceSystemDoc
	for _, f := range files {
		fileDocs, err := loadFile(f, opts)
		if err != nil {
			return nil, err
		}
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}

// loadFile decodes every document of a multi-document YAML file.
func loadFile(path string, opts LoadOptions) ([]SourceSystemDoc, error) {
	data, err := os.ReadFile(path) //nolint:gosec // intentional: reading user-specified config files
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return parse(path, data, opts)
}

func parse(path string, data []byte, opts LoadOptions) ([]SourceSystemDoc, error) {
	var docs []SourceSystemDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for i := 0; ; i++ {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				return docs, nil
			}
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if len(node.Content) == 0 || node.Content[0].Tag == "!!null" {
			continue
		}

		var env Document
		if err := node.Decode(&env); err != nil {
			return nil, fmt.Errorf("parse %s (document %d): %w", path, i+1, err)
		}
		if err := validateDocument(path, env.APIVersion, env.Kind, KindSourceSystem); err != nil {
			return nil, err
		}

		doc, err := decodeStrict(&node, opts)
		if err != nil {
			return nil, fmt.Errorf("parse %s (document %d): %w", path, i+1, err)
		}
		doc.Path = path
		docs = append(docs, doc)
	}
}

// decodeStrict decodes node into a SourceSystemDoc, rejecting unknown
// fields unless the options allow them.
func decodeStrict(node *yaml.Node, opts LoadOptions) (SourceSystemDoc, error) {
	var doc SourceSystemDoc
	if opts.AllowUnknownFields {
		err := node.Decode(&doc)
		return doc, err
	}
	raw, err := yaml.Marshal(node)
	if err != nil {
		return doc, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	err = dec.Decode(&doc)
	return doc, err
}

// validateDocument checks the apiVersion and kind fields.
func validateDocument(path string, apiVersion, kind, expectedKind string) error {
	if apiVersion != SupportedAPIVersion {
		return fmt.Errorf("%s: unsupported apiVersion %q (expected %q)", path, apiVersion, SupportedAPIVersion)
	}
	if kind != expectedKind {
		return fmt.Errorf("%s: unexpected kind %q (expected %q)", path, kind, expectedKind)
	}
	return nil
}
