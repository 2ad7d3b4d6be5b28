package xcross

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
)

type cargoProject struct {
	Packages []cargoPackage `json:"packages"`
}

type cargoPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// parseCargoMetadata extracts the crate list from `cargo metadata` output.
// Crates with unparsable versions are skipped.
func parseCargoMetadata(data []byte) ([]Dependency, error) {
	var project cargoProject
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to parse cargo metadata: %w", err)
	}
	deps := make([]Dependency, 0, len(project.Packages))
	for _, p := range project.Packages {
		dep, err := ParseDependency(p.Name, p.Version)
		if err != nil {
			debugf("skipping crate: %v", err)
			continue
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// cargoDependencies lists the crates of the project in the current directory.
func cargoDependencies(ctx context.Context) ([]Dependency, error) {
	cmd := exec.CommandContext(ctx, "cargo", "metadata", "-q", "--format-version", "1")
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("could not retrieve project metadata: %w", err)
	}
	return parseCargoMetadata(out)
}

// cargoBuild runs `cargo build --target target` with env applied.
func cargoBuild(ctx context.Context, target string, args []string, env Environment) error {
	cmdArgs := append([]string{"build", "--target", target}, args...)
	cmd := exec.CommandContext(ctx, "cargo", cmdArgs...)
	cmd.Env = append(os.Environ(), env.Environ()...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	debugf("running cargo %v", cmdArgs)
	return cmd.Run()
}
