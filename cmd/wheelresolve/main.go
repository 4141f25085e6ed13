package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/amterp/color"
	mapset "github.com/deckarep/golang-set/v2"
	wr "github.com/rhansen/wheelresolve"
	"github.com/rhansen/wheelresolve/internal/itertools"
	"github.com/rhansen/wheelresolve/internal/logging"
	"github.com/rhansen/wheelresolve/internal/repository"
	"github.com/rhansen/wheelresolve/internal/wheelcache"
)

var (
	cyanf    = color.New(color.FgCyan).SprintfFunc()
	hicyanf  = color.New(color.FgHiCyan).SprintfFunc()
	hiblackf = color.New(color.FgHiBlack).SprintfFunc()
	redf     = color.New(color.FgRed).SprintfFunc()
)

type outputFn = func(ctx context.Context, cfg *config, f *wr.Factory, ireqs []*wr.InstallRequirement) error

type config struct {
	repo        string
	reqs        []string
	reqFiles    []string
	constraints []string
	editables   []string
	factory     wr.Options
	resolve     wr.ResolveOptions
	python      string
	platforms   []string
	pre         bool
	wheelCache  string
	buildHook   string
	buildEnv    []string
	limit       int
	output      *outputFn
}

func ver() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "(devel)" {
		return ""
	}
	return bi.Main.Version
}

var allOutputFuncs = [...]outputFn{
	outputPlan,
	outputTree,
	outputRaw,
	outputCandidates,
}

var allOutput = map[string]*outputFn{
	"plan":       &allOutputFuncs[0],
	"tree":       &allOutputFuncs[1],
	"raw":        &allOutputFuncs[2],
	"candidates": &allOutputFuncs[3],
}

func notPython(id wr.Identifier) bool {
	return id != wr.RequiresPythonIdentifier
}

func outputPlan(ctx context.Context, cfg *config, f *wr.Factory, ireqs []*wr.InstallRequirement) error {
	res, err := wr.Resolve(ctx, f, ireqs, cfg.resolve)
	if err != nil {
		return err
	}
	if len(res.Install) == 0 {
		fmt.Print(hiblackf("nothing to install") + "\n")
		return nil
	}
	for _, a := range res.Install {
		fmt.Print(a.Candidate.FormatForError())
		if a.Uninstall != nil {
			fmt.Print(cyanf(" (replaces %s %s)", a.Uninstall.Name, a.Uninstall.Version))
		}
		fmt.Print("\n")
	}
	return nil
}

func outputTree(ctx context.Context, cfg *config, f *wr.Factory, ireqs []*wr.InstallRequirement) error {
	res, err := wr.Resolve(ctx, f, ireqs, cfg.resolve)
	if err != nil {
		return err
	}
	installedMsg := hicyanf(" (installed)")
	seenMsg := hiblackf(" (repeat)")
	seen := mapset.NewThreadUnsafeSet[wr.Identifier]()
	var visit func(id wr.Identifier, indent int)
	visit = func(id wr.Identifier, indent int) {
		wasSeen := !seen.Add(id)
		c := res.Mapping[id]
		fmt.Print(strings.Repeat("  ", indent))
		switch {
		case wasSeen:
			fmt.Printf("%s%s", hiblackf("%v", c), seenMsg)
		case c.IsInstalled():
			fmt.Printf("%v%s", c, installedMsg)
		default:
			fmt.Print(c)
		}
		fmt.Print("\n")
		if wasSeen {
			return
		}
		for child := range itertools.Filter(slices.Values(res.Graph[id]), notPython) {
			visit(child, indent+1)
		}
	}
	for id := range itertools.Filter(slices.Values(res.Graph[""]), notPython) {
		visit(id, 0)
	}
	return nil
}

func outputRaw(ctx context.Context, cfg *config, f *wr.Factory, ireqs []*wr.InstallRequirement) error {
	res, err := wr.Resolve(ctx, f, ireqs, cfg.resolve)
	if err != nil {
		return err
	}
	for _, id := range slices.Sorted(itertools.Filter(maps.Keys(res.Mapping), notPython)) {
		fmt.Printf("%v\n", res.Mapping[id])
	}
	return nil
}

// outputCandidates prints, for each requirement, the first candidates the solver would try.
func outputCandidates(ctx context.Context, cfg *config, f *wr.Factory, ireqs []*wr.InstallRequirement) error {
	for _, ireq := range ireqs {
		if ireq.Constraint {
			continue
		}
		r, err := f.MakeRequirementFromInstallReq(ctx, ireq, nil)
		if err != nil {
			return err
		}
		if r == nil {
			continue
		}
		seq, done := f.FindCandidates(ctx, r.Name(), []wr.Requirement{r}, nil, wr.EmptyConstraint(),
			cfg.resolve.UpgradeStrategy != wr.UpgradeEager)
		fmt.Printf("%s\n", r.FormatForError())
		n := 0
		for s := range itertools.Stringify(itertools.Take(seq, cfg.limit)) {
			fmt.Printf("  %s\n", s)
			n++
		}
		if err := done(); err != nil {
			return err
		}
		if n == 0 {
			fmt.Printf("  %s\n", redf("no candidates"))
		}
	}
	return nil
}

// readRequirementsFile parses a requirements file: one requirement per line, with blank lines and
// "#" comments ignored.
func readRequirementsFile(path string, constraint bool) ([]*wr.InstallRequirement, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	opt := "-r"
	if constraint {
		opt = "-c"
	}
	var ireqs []*wr.InstallRequirement
	sc := bufio.NewScanner(fh)
	for lineno := 1; sc.Scan(); lineno++ {
		line := sc.Text()
		if i := strings.Index(line, " #"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ireq, err := wr.ParseInstallRequirement(line, nil)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineno, err)
		}
		ireq.ComesFromText = fmt.Sprintf("%s %s (line %d)", opt, path, lineno)
		ireq.UserSupplied = !constraint
		ireq.Constraint = constraint
		ireqs = append(ireqs, ireq)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ireqs, nil
}

func collectRequirements(cfg *config) ([]*wr.InstallRequirement, error) {
	var ireqs []*wr.InstallRequirement
	for _, path := range cfg.constraints {
		cs, err := readRequirementsFile(path, true)
		if err != nil {
			return nil, err
		}
		ireqs = append(ireqs, cs...)
	}
	for _, loc := range cfg.editables {
		ireq, err := wr.ParseEditable(loc, nil)
		if err != nil {
			return nil, err
		}
		ireq.UserSupplied = true
		ireqs = append(ireqs, ireq)
	}
	for _, path := range cfg.reqFiles {
		rs, err := readRequirementsFile(path, false)
		if err != nil {
			return nil, err
		}
		ireqs = append(ireqs, rs...)
	}
	for _, s := range cfg.reqs {
		ireq, err := wr.ParseInstallRequirement(s, nil)
		if err != nil {
			return nil, err
		}
		ireq.UserSupplied = true
		ireqs = append(ireqs, ireq)
	}
	return ireqs, nil
}

func run(ctx context.Context, cfg *config) error {
	repo, err := repository.Load(ctx, cfg.repo)
	if err != nil {
		return err
	}
	target, err := wr.NewTargetPython(cfg.python, cfg.platforms...)
	if err != nil {
		return fmt.Errorf("invalid -python: %w", err)
	}
	repo.Tags = target.SupportedTags()
	repo.AllowPrereleases = cfg.pre
	cfg.factory.Target = target

	var backend wr.BuildBackend = repo
	if cfg.buildHook != "" {
		backend = &wr.CommandBackend{Args: strings.Fields(cfg.buildHook), Env: cfg.buildEnv}
	}
	var cache wr.WheelCache
	if cfg.wheelCache != "" {
		c, err := wheelcache.Open(cfg.wheelCache, true)
		if err != nil {
			return err
		}
		defer c.Close()
		cache = c
	}
	f, err := wr.NewFactory(ctx, repo, backend, cache, repo, cfg.factory)
	if err != nil {
		return err
	}
	ireqs, err := collectRequirements(cfg)
	if err != nil {
		return err
	}
	return (*cfg.output)(ctx, cfg, f, ireqs)
}

var slogLevel = func() *slog.LevelVar {
	lvl := &slog.LevelVar{}
	lvl.Set(logging.LevelInfo)
	slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, lvl)))
	return lvl
}()

func choiceFlag[T any](p *T, name string, choices map[string]T, dflt string, post func(string) error, usage string) {
	cstr := strings.Join(slices.Sorted(maps.Keys(choices)), ", ")
	var ok bool
	if *p, ok = choices[dflt]; !ok {
		panic(fmt.Errorf("invalid default for %v option: %v", dflt, name))
	}
	usage += fmt.Sprintf(" (one of: %v; default: %v)", cstr, dflt)
	flag.Func(name, usage, func(arg string) error {
		if arg == "" {
			arg = dflt
		}
		v, ok := choices[arg]
		if !ok {
			return fmt.Errorf("expected one of: %v", cstr)
		}
		*p = v
		if post != nil {
			return post(arg)
		}
		return nil
	})
}

func listFlag(p *[]string, name, usage string) {
	flag.Func(name, usage, func(arg string) error {
		*p = append(*p, arg)
		return nil
	})
}

func parseFlags() *config {
	cfg := &config{}

	bumpLogLevel := func(lower bool) {
		slog.Debug("log level pre-change", "level", slogLevel.Level())
		slogLevel.Set(logging.BumpLevel(slogLevel.Level(), lower))
		slog.Debug("log level post-change", "level", slogLevel.Level())
	}
	setLogLevel := func(arg string) error {
		lvl, err := logging.StringToLevel(arg)
		if err != nil {
			return err
		}
		slogLevel.Set(lvl)
		return nil
	}
	flag.BoolFunc("v", "Increase log verbosity.", func(arg string) error {
		switch arg {
		case "", "true":
			bumpLogLevel(true)
		default:
			return setLogLevel(arg)
		}
		return nil
	})
	flag.BoolFunc("q", "Decrease log verbosity.", func(arg string) error {
		switch arg {
		case "", "true":
			bumpLogLevel(false)
		default:
			return setLogLevel(arg)
		}
		return nil
	})

	colorChoices := map[string]bool{
		"auto":   color.NoColor,
		"never":  true,
		"always": false,
	}
	choiceFlag(&color.NoColor, "color", colorChoices, "auto", nil,
		"Output colors according to `mode`.")
	flag.StringVar(&cfg.repo, "repo", ".", "Read the package index and installed environment from `dir`.")
	listFlag(&cfg.reqFiles, "r", "Install from the requirements `file`.  May be repeated.")
	listFlag(&cfg.constraints, "c", "Constrain versions using the constraints `file`.  May be repeated.")
	listFlag(&cfg.editables, "e", "Install the project at `path` in editable mode.  May be repeated.")
	flag.BoolVar(&cfg.factory.ForceReinstall, "force-reinstall", false,
		"Reinstall all packages even if they are already up to date.")
	flag.BoolVar(&cfg.factory.IgnoreInstalled, "ignore-installed", false,
		"Ignore the installed packages, overwriting them.")
	flag.BoolVar(&cfg.factory.IgnoreRequiresPython, "ignore-requires-python", false,
		"Ignore the Requires-Python information.")
	flag.BoolVar(&cfg.factory.UseUserSite, "user", false, "Install to the user site-packages directory.")
	flag.BoolVar(&cfg.factory.UnderVirtualenv, "virtualenv", false,
		"Assume the target interpreter runs in a virtual environment.")
	flag.BoolVar(&cfg.factory.RequireHashes, "require-hashes", false,
		"Require a hash to check each requirement against.")
	flag.BoolVar(&cfg.resolve.IgnoreDependencies, "no-deps", false, "Don't install package dependencies.")
	strategies := map[string]wr.UpgradeStrategy{}
	for _, s := range []wr.UpgradeStrategy{wr.UpgradeToSatisfyOnly, wr.UpgradeOnlyIfNeeded, wr.UpgradeEager} {
		strategies[s.String()] = s
	}
	choiceFlag(&cfg.resolve.UpgradeStrategy, "upgrade-strategy", strategies, wr.UpgradeToSatisfyOnly.String(), nil,
		"Upgrade installed packages according to `strategy`.")
	choiceFlag(&cfg.resolve.Solver, "solver", map[string]wr.Solver{
		"backtrack": wr.SolverBacktrack,
		"sat":       wr.SolverSat,
	}, "backtrack", nil, "Select candidates using the algorithm indicated by `mode`.")
	flag.IntVar(&cfg.resolve.MaxRounds, "max-rounds", 0, "Give up after trying `n` pins (0 means the default).")
	flag.StringVar(&cfg.python, "python", "3.12.0", "Resolve for the Python interpreter `version`.")
	listFlag(&cfg.platforms, "platform", "Only use wheels compatible with `platform`.  May be repeated.")
	flag.BoolVar(&cfg.pre, "pre", false, "Include pre-release and development versions.")
	flag.StringVar(&cfg.wheelCache, "wheel-cache", "", "Look up locally built wheels in the database at `path`.")
	flag.StringVar(&cfg.buildHook, "build-hook", "",
		"Obtain artifact metadata by running `command` with the artifact URL appended.")
	listFlag(&cfg.buildEnv, "build-env", "Add `name=value` to the build hook's environment.  May be repeated.")
	flag.IntVar(&cfg.limit, "n", 10, "Print at most `n` candidates per requirement with -format=candidates.")
	choiceFlag(&cfg.output, "format", allOutput, "plan", nil,
		"Print the result according to `mode`.")
	help := func(string) error {
		// Pet peeve: Help output should be written to standard output, not standard error, when the
		// user explicitly requests the help.  This makes it easier for them to pipe the help output to
		// a pager.
		flag.CommandLine.SetOutput(os.Stdout)
		flag.Usage()
		os.Exit(0)
		return nil
	}
	helpUsage := "Print usage information and exit."
	flag.BoolFunc("h", helpUsage, help)
	flag.BoolFunc("help", helpUsage, help)
	flag.BoolFunc("version", "Print the version and exit.", func(string) error {
		v := ver()
		if v == "" {
			log.Fatal("the Go build information is unavalable; try passing the \"-buildvcs=true\" build option to go")
		}
		fmt.Printf("%s\n", v)
		os.Exit(0)
		return nil
	})
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options] [requirement...]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	cfg.reqs = flag.Args()
	if len(cfg.reqs)+len(cfg.reqFiles)+len(cfg.editables) == 0 {
		log.Fatal("at least one requirement is required")
	}
	return cfg
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := parseFlags()
	if err := run(ctx, cfg); err != nil {
		var dnf *wr.DistributionNotFoundError
		var ce *wr.ConflictError
		switch {
		case errors.As(err, &dnf):
			fmt.Fprintf(os.Stderr, "%s\n", redf("ERROR: %s", dnf.Message))
		case errors.As(err, &ce):
			fmt.Fprintf(os.Stderr, "%s\n%s", redf("ERROR: %s", ce.Message), ce.Explanation)
		default:
			slog.ErrorContext(ctx, "failed", "error", err)
		}
		os.Exit(1)
	}
}
