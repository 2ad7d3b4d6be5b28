package xcross

import (
	"path/filepath"
	"strings"
	"unicode"
)

// prefixPlaceholder in a feature's env value expands to its install dir.
const prefixPlaceholder = "${PREFIX}"

// EnvVar is one environment override.
type EnvVar struct {
	Name  string
	Value string
}

// Environment is an ordered set of overrides without duplicate names.
type Environment []EnvVar

// set keeps the position of the first occurrence and the last value.
func (e *Environment) set(name, value string) {
	for i := range *e {
		if (*e)[i].Name == name {
			debugf("env %s overridden: %q -> %q", name, (*e)[i].Value, value)
			(*e)[i].Value = value
			return
		}
	}
	*e = append(*e, EnvVar{Name: name, Value: value})
}

// Get returns the value of name.
func (e Environment) Get(name string) (string, bool) {
	for _, v := range e {
		if v.Name == name {
			return v.Value, true
		}
	}
	return "", false
}

// Environ renders the overrides as NAME=value strings for exec.Cmd.Env.
func (e Environment) Environ() []string {
	out := make([]string, len(e))
	for i, v := range e {
		out[i] = v.Name + "=" + v.Value
	}
	return out
}

// TargetEnvName converts a triple to the form cargo uses in variable
// names: uppercase, with every run of non-alphanumerics collapsed to "_".
func TargetEnvName(triple string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range triple {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// SynthesizeEnvironment builds the overrides cargo needs to link for
// base.Target with the sysroot at baseDir plus any resolved features.
func SynthesizeEnvironment(host string, base ToolchainBase, baseDir string, features []ResolvedFeature) Environment {
	target := base.Target
	gcc := filepath.Join(baseDir, "bin", target+"-gcc")
	ar := filepath.Join(baseDir, "bin", target+"-ar")
	include := filepath.Join(baseDir, target, "include")
	gccInclude := filepath.Join(baseDir, "lib", "gcc", target, base.GCCVersion, "include")

	cflags := strings.Join([]string{
		"-nostdinc",
		"-I", include,
		"-I", gccInclude,
		"-isystem", include,
		"--sysroot", baseDir,
	}, " ")

	var env Environment
	env.set("CARGO_TARGET_"+TargetEnvName(target)+"_LINKER", gcc)
	env.set("TARGET_CC", gcc)
	env.set("TARGET_AR", ar)
	env.set("TARGET_CFLAGS", cflags)
	env.set("HOST", host)

	for _, f := range features {
		for _, tmpl := range f.Env {
			env.set(tmpl.Name, strings.ReplaceAll(tmpl.Value, prefixPlaceholder, f.Dir))
		}
	}
	return env
}
