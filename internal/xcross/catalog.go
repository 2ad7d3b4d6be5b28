package xcross

import (
	_ "embed"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// cachePrefixLen is the number of checksum hex digits used in cache paths.
const cachePrefixLen = 16

// PackageKind distinguishes sysroots from add-on libraries in the cache tree.
type PackageKind string

const (
	KindBase    PackageKind = "base"
	KindFeature PackageKind = "feature"
)

// Artifact describes one remote archive.
type Artifact struct {
	Path     string   `yaml:"path"`
	Size     int64    `yaml:"size"`
	Hash     HashAlgo `yaml:"hash"`
	Checksum string   `yaml:"checksum"`
}

// ToolchainBase is a cross-compilation sysroot for one host/target pair.
type ToolchainBase struct {
	Host       string `yaml:"host"`
	Target     string `yaml:"target"`
	GCCVersion string `yaml:"gcc"`
	Artifact   `yaml:",inline"`
}

// EnvTemplate is an environment variable whose value may reference ${PREFIX}.
type EnvTemplate struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// ToolchainFeature is an add-on library for crates matching Name and Version.
type ToolchainFeature struct {
	Target   string        `yaml:"target"`
	Name     string        `yaml:"name"`
	Version  string        `yaml:"version"`
	Env      []EnvTemplate `yaml:"env"`
	Artifact `yaml:",inline"`

	constraint *semver.Constraints
}

// Package is the kind-independent view of a descriptor the install
// pipeline and cache layout work with.
type Package struct {
	Kind   PackageKind
	Target string
	Name   string
	Artifact
}

func (p Package) String() string {
	return fmt.Sprintf("%s/%s/%s", p.Kind, p.Target, p.Name)
}

// Package returns the installable view of the base toolchain.
func (b ToolchainBase) Package() Package {
	return Package{Kind: KindBase, Target: b.Target, Name: "gcc-" + b.GCCVersion, Artifact: b.Artifact}
}

// Package returns the installable view of the feature.
func (f ToolchainFeature) Package() Package {
	return Package{Kind: KindFeature, Target: f.Target, Name: f.Name, Artifact: f.Artifact}
}

// Matches reports whether the dependency version satisfies the feature's constraint.
func (f ToolchainFeature) Matches(v *semver.Version) bool {
	return f.constraint != nil && v != nil && f.constraint.Check(v)
}

// Catalog is the immutable descriptor registry. Lookups are linear and
// first-match so every result traces back to one entry.
type Catalog struct {
	bases    []ToolchainBase
	features []ToolchainFeature
}

type catalogFile struct {
	Base     []ToolchainBase    `yaml:"base"`
	Features []ToolchainFeature `yaml:"features"`
}

// DefaultCatalog returns the catalog compiled into the binary.
var DefaultCatalog = sync.OnceValue(func() *Catalog {
	c, err := ParseCatalog(embeddedCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
})

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return NewCatalog(f.Base, f.Features)
}

// NewCatalog validates and copies the given descriptors.
func NewCatalog(bases []ToolchainBase, features []ToolchainFeature) (*Catalog, error) {
	c := &Catalog{
		bases:    slices.Clone(bases),
		features: make([]ToolchainFeature, 0, len(features)),
	}
	for i := range c.bases {
		b := &c.bases[i]
		if b.Host == "" || b.Target == "" {
			return nil, fmt.Errorf("base entry %d: host and target are required", i)
		}
		if err := b.Artifact.normalize(); err != nil {
			return nil, fmt.Errorf("base %s -> %s: %w", b.Host, b.Target, err)
		}
	}
	for i, f := range features {
		if f.Target == "" || f.Name == "" {
			return nil, fmt.Errorf("feature entry %d: target and name are required", i)
		}
		cons, err := semver.NewConstraint(f.Version)
		if err != nil {
			return nil, fmt.Errorf("feature %s (%s): invalid version constraint %q: %w", f.Name, f.Target, f.Version, err)
		}
		if err := f.Artifact.normalize(); err != nil {
			return nil, fmt.Errorf("feature %s (%s): %w", f.Name, f.Target, err)
		}
		f.constraint = cons
		f.Env = slices.Clone(f.Env)
		c.features = append(c.features, f)
	}
	return c, nil
}

func (a *Artifact) normalize() error {
	if a.Path == "" {
		return fmt.Errorf("missing archive path")
	}
	if _, err := archiveFormatFor(a.Path); err != nil {
		return err
	}
	if a.Hash == "" {
		a.Hash = HashSHA256
	}
	if _, err := newHasher(a.Hash); err != nil {
		return err
	}
	if len(a.Checksum) < cachePrefixLen {
		return fmt.Errorf("checksum %q is shorter than %d hex digits", a.Checksum, cachePrefixLen)
	}
	if _, err := hex.DecodeString(a.Checksum); err != nil {
		return fmt.Errorf("checksum %q is not hex: %w", a.Checksum, err)
	}
	a.Checksum = strings.ToLower(a.Checksum)
	return nil
}

// FindBase returns the first base toolchain for host and target.
func (c *Catalog) FindBase(host, target string) (ToolchainBase, bool) {
	for _, b := range c.bases {
		if b.Host == host && b.Target == target {
			return b, true
		}
	}
	return ToolchainBase{}, false
}

// FindFeature returns the first feature for target and crate name whose
// constraint accepts version.
func (c *Catalog) FindFeature(target, name string, version *semver.Version) (ToolchainFeature, bool) {
	for _, f := range c.features {
		if f.Target != target || f.Name != name {
			continue
		}
		if f.Matches(version) {
			f.Env = slices.Clone(f.Env)
			return f, true
		}
	}
	return ToolchainFeature{}, false
}

// Bases returns a copy of all base entries in catalog order.
func (c *Catalog) Bases() []ToolchainBase {
	return slices.Clone(c.bases)
}

// Features returns a copy of all feature entries in catalog order.
func (c *Catalog) Features() []ToolchainFeature {
	out := slices.Clone(c.features)
	for i := range out {
		out[i].Env = slices.Clone(out[i].Env)
	}
	return out
}

// Audit lists data-integrity problems: entries that can never be selected
// because an earlier entry shadows them.
func (c *Catalog) Audit() []string {
	var findings []string
	seenBase := make(map[[2]string]int)
	for i, b := range c.bases {
		key := [2]string{b.Host, b.Target}
		if first, ok := seenBase[key]; ok {
			findings = append(findings, fmt.Sprintf("base entry %d (%s -> %s) is shadowed by entry %d", i, b.Host, b.Target, first))
			continue
		}
		seenBase[key] = i
	}
	seenFeature := make(map[[3]string]int)
	for i, f := range c.features {
		key := [3]string{f.Target, f.Name, f.constraint.String()}
		if first, ok := seenFeature[key]; ok {
			findings = append(findings, fmt.Sprintf("feature entry %d (%s %s for %s) is shadowed by entry %d", i, f.Name, f.Version, f.Target, first))
			continue
		}
		seenFeature[key] = i
	}
	return findings
}
