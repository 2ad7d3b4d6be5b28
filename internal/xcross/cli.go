package xcross

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: xcross <command> [arguments]")
	fmt.Println()
	color.Info.Println("Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Args string
		Desc string
	}
	cmds := []cmdInfo{
		{"build, b", "--target <triple> [-- cargo args]", "Install the toolchain if needed and run cargo build"},
		{"env, e", "--target <triple>", "Print the environment overrides for a target"},
		{"install, i", "--target <triple>", "Download and install the toolchain and features"},
		{"list, ls", "[--all]", "List toolchains available for this host"},
		{"cleanup", "[--max-age <dur>]", "Remove temporary directories left by interrupted installs"},
		{"version, --version", "", "Version information"},
	}

	maxLen := 0
	for _, c := range cmds {
		length := len(c.Cmd) + len(c.Args)
		if c.Args != "" {
			length++
		}
		maxLen = max(maxLen, length)
	}
	columnWidth := maxLen + 4

	for _, c := range cmds {
		usage := c.Cmd
		if c.Args != "" {
			usage += " " + c.Args
		}
		fmt.Print("  ")
		color.Bold.Print(c.Cmd)
		if c.Args != "" {
			fmt.Print(" ")
			color.Cyan.Print(c.Args)
		}
		fmt.Print(strings.Repeat(" ", max(columnWidth-len(usage), 1)))
		color.Info.Println(c.Desc)
	}
	fmt.Println()
	fmt.Println("Common flags: --config <file>, --debug")
}

// Main is the CLI entrypoint.
func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	setupLogger(os.Stderr, false)

	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	err := runCommand(ctx, os.Args[1], os.Args[2:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("interrupted: %w", err)
		}
		fmt.Fprintf(os.Stderr, "%s %v\n", colError.Sprint("error:"), err)
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "build", "b":
		return handleBuildCommand(ctx, args)
	case "env", "e":
		return handleEnvCommand(ctx, args)
	case "install", "i":
		return handleInstallCommand(ctx, args)
	case "list", "ls":
		return handleListCommand(ctx, args)
	case "cleanup":
		return handleCleanupCommand(ctx, args)
	case "version", "--version":
		fmt.Printf("xcross %s (built %s)\n", version, buildDate)
		return nil
	case "help", "-h", "--help":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// commandFlags holds the flags every subcommand accepts.
type commandFlags struct {
	*pflag.FlagSet
	config string
	debug  bool
}

func newCommandFlags(name string) *commandFlags {
	f := &commandFlags{FlagSet: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	f.StringVar(&f.config, "config", defaultConfigPath(), "Path to the configuration file")
	f.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	return f
}

// targetFlags adds the flags shared by commands that resolve a target.
type targetFlags struct {
	target string
	noDeps bool
	jobs   int
}

func (t *targetFlags) register(f *commandFlags) {
	f.StringVarP(&t.target, "target", "t", "", "Target triple to build for")
	f.BoolVar(&t.noDeps, "no-deps", false, "Skip cargo metadata; resolve the base toolchain only")
	f.IntVarP(&t.jobs, "jobs", "j", 0, "Parallel downloads (default XCROSS_JOBS)")
}

// app is the state a subcommand runs with once flags are parsed.
type app struct {
	cfg     *Config
	manager *ToolchainManager
}

func newApp(ctx context.Context, f *commandFlags) (*app, error) {
	ConfigFile = f.config
	cfg, err := loadConfig(ConfigFile)
	if err != nil {
		return nil, err
	}
	if f.debug {
		cfg.Values["XCROSS_DEBUG"] = "1"
	}
	if err := initConfig(cfg); err != nil {
		return nil, err
	}
	setupLogger(os.Stderr, Debug)
	debugf("host %s, cache %s", HostTriple, CacheDir)

	fetcher, err := NewFetcher(ctx, MirrorURL, cfg)
	if err != nil {
		return nil, err
	}
	catalog := DefaultCatalog()
	for _, finding := range catalog.Audit() {
		log.Warn().Str("catalog", "embedded").Msg(finding)
	}
	packages := NewPackageManager(fetcher, CacheDir)
	return &app{cfg: cfg, manager: NewToolchainManager(catalog, HostTriple, CacheDir, packages)}, nil
}

// resolve checks target support and selects the packages the build needs.
func (a *app) resolve(ctx context.Context, t targetFlags) (*Resolution, error) {
	if t.target == "" {
		return nil, errors.New("--target is required")
	}
	if !a.manager.IsAvailable(t.target) {
		return nil, fmt.Errorf("could not find suitable toolchain for selected target (%s) and host (%s) system: %w",
			t.target, a.manager.Host(), ErrUnsupportedTarget)
	}
	var deps []Dependency
	if !t.noDeps {
		var err error
		deps, err = cargoDependencies(ctx)
		if err != nil {
			return nil, err
		}
	}
	return a.manager.Resolve(t.target, deps)
}

// ensureInstalled acquires whatever res needs that is not cached yet.
func (a *app) ensureInstalled(ctx context.Context, res *Resolution, jobs int) error {
	missing := a.manager.Missing(res)
	if len(missing) == 0 {
		return nil
	}
	if jobs < 1 {
		jobs = Jobs
	}

	var total int64
	for _, p := range missing {
		arrowf(colInfo, "Installing %s (%s)\n", p.Name, p.Kind)
		total += p.Size
	}

	bar := newFetchBar(total)
	err := a.manager.InstallAll(ctx, missing, jobs, func(_ *PackageInstall, signal *ProgressSignal) {
		trackProgress(bar, signal)
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("could not complete toolchain installation: %w", err)
	}
	return nil
}

// newFetchBar returns a byte progress bar on stderr, or nil when stderr
// is not a terminal.
func newFetchBar(total int64) *progressbar.ProgressBar {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(fmt.Sprintf("%12s", "Fetch")),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: "-",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// trackProgress adds the increments from signal to bar until the stream
// ends. Several installs may feed one bar concurrently.
func trackProgress(bar *progressbar.ProgressBar, signal *ProgressSignal) {
	if bar == nil {
		return
	}
	var last int64
	for n := range signal.All() {
		_ = bar.Add64(n - last)
		last = n
	}
}

func handleBuildCommand(ctx context.Context, args []string) error {
	f := newCommandFlags("build")
	var t targetFlags
	t.register(f)
	if err := f.Parse(args); err != nil {
		return err
	}
	a, err := newApp(ctx, f)
	if err != nil {
		return err
	}

	res, err := a.resolve(ctx, t)
	if err != nil {
		return err
	}
	colSuccess.Printf("%12s ", "Toolchain")
	fmt.Printf("%s (gcc %s)\n", t.target, res.Base.GCCVersion)
	for _, feature := range res.Features {
		colSuccess.Printf("%12s ", "Feature")
		fmt.Printf("%s for %s %s\n", feature.Name, feature.Dependency.Name, feature.Dependency.Version)
	}

	if err := a.ensureInstalled(ctx, res, t.jobs); err != nil {
		return err
	}
	if err := cargoBuild(ctx, t.target, f.Args(), res.Environment()); err != nil {
		return fmt.Errorf("cargo build failed: %w", err)
	}
	return nil
}

func handleInstallCommand(ctx context.Context, args []string) error {
	f := newCommandFlags("install")
	var t targetFlags
	t.register(f)
	if err := f.Parse(args); err != nil {
		return err
	}
	a, err := newApp(ctx, f)
	if err != nil {
		return err
	}
	res, err := a.resolve(ctx, t)
	if err != nil {
		return err
	}
	if len(a.manager.Missing(res)) == 0 {
		arrowf(colSuccess, "Toolchain for %s is already installed\n", t.target)
		return nil
	}
	if err := a.ensureInstalled(ctx, res, t.jobs); err != nil {
		return err
	}
	arrowf(colSuccess, "Toolchain for %s installed\n", t.target)
	return nil
}

func handleEnvCommand(ctx context.Context, args []string) error {
	f := newCommandFlags("env")
	var t targetFlags
	t.register(f)
	export := f.Bool("export", true, "Prefix each line with 'export' for sh-compatible shells")
	if err := f.Parse(args); err != nil {
		return err
	}
	a, err := newApp(ctx, f)
	if err != nil {
		return err
	}
	res, err := a.resolve(ctx, t)
	if err != nil {
		return err
	}
	if missing := a.manager.Missing(res); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, p := range missing {
			names[i] = p.String()
		}
		return fmt.Errorf("not installed: %s (run 'xcross install --target %s')", strings.Join(names, ", "), t.target)
	}
	for _, v := range res.Environment() {
		if *export {
			fmt.Printf("export %s=%s\n", v.Name, shellQuote(v.Value))
		} else {
			fmt.Printf("%s=%s\n", v.Name, v.Value)
		}
	}
	return nil
}

// shellQuote wraps s in single quotes for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func handleListCommand(ctx context.Context, args []string) error {
	f := newCommandFlags("list")
	all := f.Bool("all", false, "Include toolchains for other hosts")
	if err := f.Parse(args); err != nil {
		return err
	}
	a, err := newApp(ctx, f)
	if err != nil {
		return err
	}

	catalog := DefaultCatalog()
	bases := catalog.Bases()
	sort.SliceStable(bases, func(i, j int) bool { return bases[i].Target < bases[j].Target })

	shown := 0
	for _, b := range bases {
		if b.Host != a.manager.Host() && !*all {
			continue
		}
		shown++
		state := colWarn.Sprint("not installed")
		if b.Host == a.manager.Host() && a.manager.IsInstalled(b.Target) {
			state = colSuccess.Sprint("installed")
		}
		color.Bold.Print(b.Target)
		fmt.Printf("  gcc %s  host %s  %s\n", b.GCCVersion, b.Host, state)
		for _, feature := range catalog.Features() {
			if feature.Target != b.Target {
				continue
			}
			fstate := "not installed"
			if _, err := os.Stat(a.manager.CachePath(feature.Package())); err == nil {
				fstate = "installed"
			}
			fmt.Printf("    %s %s  %s\n", feature.Name, feature.Version, fstate)
		}
	}
	if shown == 0 {
		colNote.Printf("No toolchains available for host %s\n", a.manager.Host())
	}
	return nil
}

func handleCleanupCommand(ctx context.Context, args []string) error {
	f := newCommandFlags("cleanup")
	maxAge := f.Duration("max-age", time.Hour, "Only remove temporary directories older than this")
	if err := f.Parse(args); err != nil {
		return err
	}
	if _, err := newApp(ctx, f); err != nil {
		return err
	}
	removed, err := PruneTempDirs(CacheDir, *maxAge)
	if err != nil {
		return err
	}
	for _, dir := range removed {
		arrowf(colWarn, "Removed %s\n", dir)
	}
	arrowf(colSuccess, "Removed %d abandoned temporary directories\n", len(removed))
	return nil
}
