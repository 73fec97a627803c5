package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fwojciec/autoprobe"
	"gopkg.in/yaml.v3"
)

// PatternFile is the on-disk shape of a v2 pattern.
type PatternFile struct {
	Version autoprobe.SchemaVersion `json:"version" yaml:"version"`
	Name    string                  `json:"name" yaml:"name"`
	Root    *autoprobe.NodeSpec     `json:"root" yaml:"root"`
}

// LegacyFile is the on-disk shape of a v1 pattern.
type LegacyFile struct {
	Version               autoprobe.SchemaVersion `json:"version" yaml:"version"`
	autoprobe.PagePattern `yaml:",inline"`
}

// LoadPatternFile reads a YAML or JSON pattern file in either schema
// version and returns it as a tree along with the version it was written in.
func LoadPatternFile(path string) (*autoprobe.PatternTree, autoprobe.SchemaVersion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read pattern file: %w", err)
	}
	return ParsePattern(data)
}

// ParsePattern decodes a pattern document. A document with a root node
// or "version: v2" is v2; anything else is read as v1.
func ParsePattern(data []byte) (*autoprobe.PatternTree, autoprobe.SchemaVersion, error) {
	var head struct {
		Version autoprobe.SchemaVersion `yaml:"version"`
		Root    *yaml.Node              `yaml:"root"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, "", autoprobe.Errorf(autoprobe.EINVALID, "malformed pattern file: %s", err)
	}

	version := head.Version
	if version == "" {
		version = autoprobe.SchemaV1
		if head.Root != nil {
			version = autoprobe.SchemaV2
		}
	}

	switch version {
	case autoprobe.SchemaV2:
		var f PatternFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, "", autoprobe.Errorf(autoprobe.EINVALID, "malformed v2 pattern: %s", err)
		}
		if f.Root == nil {
			return nil, "", autoprobe.Errorf(autoprobe.EINVALID, "v2 pattern has no root")
		}
		if err := normalizeDefaults(f.Root); err != nil {
			return nil, "", err
		}
		return autoprobe.NewPatternTree(f.Name, f.Root), version, nil
	case autoprobe.SchemaV1:
		var f LegacyFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, "", autoprobe.Errorf(autoprobe.EINVALID, "malformed v1 pattern: %s", err)
		}
		return autoprobe.ConvertLegacyToTree(&f.PagePattern), version, nil
	default:
		return nil, "", autoprobe.Errorf(autoprobe.EINVALID, "unknown pattern version %q", version)
	}
}

// normalizeDefaults coerces YAML-decoded defaults (ints, for instance)
// into extraction values and rejects empty children.
func normalizeDefaults(spec *autoprobe.NodeSpec) error {
	if spec.DefaultValue != nil {
		v, err := autoprobe.NormalizeValue(spec.DefaultValue)
		if err != nil {
			return autoprobe.Errorf(autoprobe.EINVALID, "node %q: invalid default: %s", spec.Name, autoprobe.ErrorMessage(err))
		}
		spec.DefaultValue = v
	}
	for i, child := range spec.Children {
		if child == nil {
			return autoprobe.Errorf(autoprobe.EINVALID, "node %q: child %d is empty", spec.Name, i)
		}
		if err := normalizeDefaults(child); err != nil {
			return err
		}
	}
	return nil
}

// encodePattern writes tree in the requested schema version and format.
func encodePattern(w io.Writer, tree *autoprobe.PatternTree, version, format string) error {
	if autoprobe.SchemaVersion(version) == autoprobe.SchemaV1 {
		legacy, err := autoprobe.ConvertTreeToLegacy(tree)
		if err != nil {
			return err
		}
		return encode(w, format, LegacyFile{Version: autoprobe.SchemaV1, PagePattern: *legacy})
	}
	return encode(w, format, PatternFile{Version: autoprobe.SchemaV2, Name: tree.Name, Root: tree.Spec()})
}

func encode(w io.Writer, format string, v any) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// reportDowngrade prints every node blocking a v1 conversion.
func reportDowngrade(w io.Writer, err error) bool {
	var d *autoprobe.DowngradeError
	if !errors.As(err, &d) {
		return false
	}
	fmt.Fprintln(w, "error: pattern cannot be expressed as v1:")
	for _, r := range d.Reasons {
		fmt.Fprintf(w, "  %s: %s\n", r.NodeID, r.Reason)
	}
	return true
}

// findPattern resolves a pattern by ID, falling back to its name.
func findPattern(deps *Dependencies, ref string) (*autoprobe.PatternTree, error) {
	tree, err := deps.Patterns.FindPatternByID(deps.Ctx, ref)
	if err == nil {
		return tree, nil
	}
	if autoprobe.ErrorCode(err) != autoprobe.ENOTFOUND {
		return nil, err
	}

	trees, err := deps.Patterns.FindPatterns(deps.Ctx, autoprobe.PatternFilter{Name: &ref, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(trees) == 0 {
		return nil, autoprobe.Errorf(autoprobe.ENOTFOUND, "pattern %q not found", ref)
	}
	return trees[0], nil
}

// Run executes the pattern add command.
func (c *PatternAddCmd) Run(deps *Dependencies) error {
	tree, version, err := LoadPatternFile(c.File)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		return err
	}
	if c.Name != "" {
		tree.Name = c.Name
	}

	if errs := autoprobe.ValidatePattern(tree); len(errs) > 0 {
		printValidationErrors(deps.Stderr, errs)
		return errs.Err()
	}

	if err := deps.Patterns.CreatePattern(deps.Ctx, tree); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Added pattern %q (%s, %d nodes, from %s)\n", tree.Name, tree.ID, len(tree.Nodes), version)
	return nil
}

// Run executes the pattern list command.
func (c *PatternListCmd) Run(deps *Dependencies) error {
	trees, err := deps.Patterns.FindPatterns(deps.Ctx, autoprobe.PatternFilter{})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		return err
	}

	if len(trees) == 0 {
		fmt.Fprintln(deps.Stdout, "No patterns found. Use 'autoprobe pattern add' to create one.")
		return nil
	}

	for _, t := range trees {
		fmt.Fprintf(deps.Stdout, "%s  %s  %d nodes  %s\n", t.ID, t.Name, len(t.Nodes), t.UpdatedAt.Format(time.DateTime))
	}
	return nil
}

// Run executes the pattern show command.
func (c *PatternShowCmd) Run(deps *Dependencies) error {
	tree, err := findPattern(deps, c.Pattern)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		return err
	}

	if err := encodePattern(deps.Stdout, tree, c.Version, c.Format); err != nil {
		if !reportDowngrade(deps.Stderr, err) {
			fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		}
		return err
	}
	return nil
}

// Run executes the pattern validate command.
func (c *PatternValidateCmd) Run(deps *Dependencies) error {
	tree, version, err := LoadPatternFile(c.File)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		return err
	}

	if errs := autoprobe.ValidatePattern(tree); len(errs) > 0 {
		printValidationErrors(deps.Stdout, errs)
		return errs.Err()
	}

	fmt.Fprintf(deps.Stdout, "Pattern %q is valid (%s, %d nodes)\n", tree.Name, version, len(tree.Nodes))
	return nil
}

// Run executes the pattern convert command.
func (c *PatternConvertCmd) Run(deps *Dependencies) error {
	tree, _, err := LoadPatternFile(c.File)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		return err
	}

	if err := encodePattern(deps.Stdout, tree, c.To, c.Format); err != nil {
		if !reportDowngrade(deps.Stderr, err) {
			fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		}
		return err
	}
	return nil
}

// Run executes the pattern delete command.
func (c *PatternDeleteCmd) Run(deps *Dependencies) error {
	if !c.Force {
		fmt.Fprintf(deps.Stderr, "error: use --force to confirm deletion\n")
		return autoprobe.Errorf(autoprobe.EINVALID, "use --force to confirm deletion")
	}

	tree, err := findPattern(deps, c.Pattern)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		return err
	}

	if err := deps.Patterns.DeletePattern(deps.Ctx, tree.ID); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Deleted pattern %q\n", tree.Name)
	return nil
}

func printValidationErrors(w io.Writer, errs autoprobe.ValidationErrors) {
	fmt.Fprintf(w, "Pattern is invalid (%d problems):\n", len(errs))
	for _, e := range errs {
		fmt.Fprintf(w, "  %s: %s [%s]\n", e.NodeID, e.Message, e.Code)
	}
}
