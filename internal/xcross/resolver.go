package xcross

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"
)

// Dependency is a crate in the build, as reported by cargo.
type Dependency struct {
	Name    string
	Version *semver.Version
}

// ParseDependency parses a crate name and semantic version.
func ParseDependency(name, version string) (Dependency, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return Dependency{}, fmt.Errorf("dependency %s: invalid version %q: %w", name, version, err)
	}
	return Dependency{Name: name, Version: v}, nil
}

// ToolchainManager answers which packages a target needs, where they live
// in the cache and whether they are installed.
type ToolchainManager struct {
	catalog  *Catalog
	host     string
	cacheDir string
	packages *PackageManager
}

// ToolchainInfo summarizes the base toolchain for a target.
type ToolchainInfo struct {
	GCCVersion string
}

// ResolvedFeature is a feature selected for a dependency, with its cache dir.
type ResolvedFeature struct {
	ToolchainFeature
	Dependency Dependency
	Dir        string
}

// Resolution is everything a build for one target needs.
type Resolution struct {
	Host     string
	Base     ToolchainBase
	BaseDir  string
	Features []ResolvedFeature
}

// ResolvedPackage pairs a package with its canonical cache path.
type ResolvedPackage struct {
	Package
	Dir string
}

// NewToolchainManager returns a manager for host using catalog and the
// cache rooted at cacheDir. packages may be nil when nothing will be
// installed.
func NewToolchainManager(catalog *Catalog, host, cacheDir string, packages *PackageManager) *ToolchainManager {
	return &ToolchainManager{catalog: catalog, host: host, cacheDir: cacheDir, packages: packages}
}

// Host returns the host triple the manager resolves for.
func (m *ToolchainManager) Host() string { return m.host }

// Info returns the base toolchain summary for target.
func (m *ToolchainManager) Info(target string) (ToolchainInfo, bool) {
	base, ok := m.catalog.FindBase(m.host, target)
	if !ok {
		return ToolchainInfo{}, false
	}
	return ToolchainInfo{GCCVersion: base.GCCVersion}, true
}

// IsAvailable reports whether the catalog has a base toolchain for target.
func (m *ToolchainManager) IsAvailable(target string) bool {
	_, ok := m.catalog.FindBase(m.host, target)
	return ok
}

// IsInstalled reports whether the base toolchain for target is in the cache.
func (m *ToolchainManager) IsInstalled(target string) bool {
	base, ok := m.catalog.FindBase(m.host, target)
	return ok && m.isPresent(base.Package())
}

// CachePath is the canonical directory for pkg. It depends only on the
// package kind, target and checksum, so every process agrees on it.
// Checksum case does not matter.
func (m *ToolchainManager) CachePath(pkg Package) string {
	return filepath.Join(m.cacheDir, string(pkg.Kind), pkg.Target, strings.ToLower(pkg.Checksum[:cachePrefixLen]))
}

func (m *ToolchainManager) isPresent(pkg Package) bool {
	info, err := os.Stat(m.CachePath(pkg))
	return err == nil && info.IsDir()
}

// Resolve selects the base toolchain for target and a feature for every
// dependency that has one. Dependencies without a matching feature are
// skipped.
func (m *ToolchainManager) Resolve(target string, deps []Dependency) (*Resolution, error) {
	base, ok := m.catalog.FindBase(m.host, target)
	if !ok {
		return nil, &UnsupportedTargetError{Host: m.host, Target: target}
	}
	res := &Resolution{
		Host:    m.host,
		Base:    base,
		BaseDir: m.CachePath(base.Package()),
	}
	seen := make(map[string]bool)
	for _, dep := range deps {
		feature, ok := m.catalog.FindFeature(target, dep.Name, dep.Version)
		if !ok {
			continue
		}
		dir := m.CachePath(feature.Package())
		if seen[dir] {
			continue
		}
		seen[dir] = true
		debugf("dependency %s %s uses feature %s (%s)", dep.Name, dep.Version, feature.Name, feature.Version)
		res.Features = append(res.Features, ResolvedFeature{ToolchainFeature: feature, Dependency: dep, Dir: dir})
	}
	return res, nil
}

// ResolveEnvironment resolves target and synthesizes its overrides.
func (m *ToolchainManager) ResolveEnvironment(target string, deps []Dependency) (Environment, error) {
	res, err := m.Resolve(target, deps)
	if err != nil {
		return nil, err
	}
	return res.Environment(), nil
}

// Environment synthesizes the overrides for the resolution.
func (r *Resolution) Environment() Environment {
	return SynthesizeEnvironment(r.Host, r.Base, r.BaseDir, r.Features)
}

// Packages lists the base followed by the features.
func (r *Resolution) Packages() []ResolvedPackage {
	out := []ResolvedPackage{{Package: r.Base.Package(), Dir: r.BaseDir}}
	for _, f := range r.Features {
		out = append(out, ResolvedPackage{Package: f.Package(), Dir: f.Dir})
	}
	return out
}

// Missing returns the packages of res not yet present in the cache.
func (m *ToolchainManager) Missing(res *Resolution) []ResolvedPackage {
	var missing []ResolvedPackage
	for _, p := range res.Packages() {
		if !m.isPresent(p.Package) {
			missing = append(missing, p)
		}
	}
	return missing
}

// StartInstall prepares the acquisition of pkg into its cache path.
func (m *ToolchainManager) StartInstall(pkg Package) (*PackageInstall, error) {
	if m.packages == nil {
		return nil, fmt.Errorf("%s: no package manager configured", pkg)
	}
	return m.packages.Install(pkg, m.CachePath(pkg))
}

// StartToolchainInstallation prepares the acquisition of target's base toolchain.
func (m *ToolchainManager) StartToolchainInstallation(target string) (*PackageInstall, error) {
	base, ok := m.catalog.FindBase(m.host, target)
	if !ok {
		return nil, &UnsupportedTargetError{Host: m.host, Target: target}
	}
	return m.StartInstall(base.Package())
}

// InstallAll acquires pkgs with at most jobs running at once. observe,
// if set, is called on the acquiring goroutine with each started install
// and its progress signal. The first failure cancels the remaining
// transfers.
func (m *ToolchainManager) InstallAll(ctx context.Context, pkgs []ResolvedPackage, jobs int, observe func(*PackageInstall, *ProgressSignal)) error {
	if jobs < 1 {
		jobs = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for _, p := range pkgs {
		g.Go(func() error {
			install, err := m.StartInstall(p.Package)
			if err != nil {
				return err
			}
			signal := install.Start(ctx)
			if observe != nil {
				observe(install, signal)
			}
			return install.Wait()
		})
	}
	return g.Wait()
}
