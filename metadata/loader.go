package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/watchmen-go/kernel/model"
)

// Definitions is the content of one or more definition files.
type Definitions struct {
	Topics    []model.Topic    `yaml:"topics" json:"topics" validate:"dive"`
	Pipelines []model.Pipeline `yaml:"pipelines" json:"pipelines" validate:"dive"`
}

// Merge appends the definitions of other.
func (d *Definitions) Merge(other *Definitions) {
	if other == nil {
		return
	}
	d.Topics = append(d.Topics, other.Topics...)
	d.Pipelines = append(d.Pipelines, other.Pipelines...)
}

// Parse decodes YAML definitions. A stream may hold several documents
// separated by "---".
func Parse(data []byte) (*Definitions, error) {
	out := &Definitions{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	for {
		var doc Definitions
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse definitions: %w", err)
		}
		out.Merge(&doc)
	}
	return out, nil
}

// LoadFile reads definitions from a YAML file.
func LoadFile(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions file: %w", err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// LoadDir reads every .yaml and .yml file under dir in lexical order.
func LoadDir(dir string) (*Definitions, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan definitions directory: %w", err)
	}
	sort.Strings(files)

	out := &Definitions{}
	for _, f := range files {
		defs, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		out.Merge(defs)
	}
	return out, nil
}

// Load reads definitions from path, which may be a file or a directory.
func Load(path string) (*Definitions, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat definitions: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}
