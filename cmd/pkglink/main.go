package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pkglink/linkage-cli/internal/binfmt"
	"github.com/pkglink/linkage-cli/internal/linkage"
	"github.com/pkglink/linkage-cli/internal/utils"
)

var (
	// Version information (set via ldflags during build)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pkglink",
		Short: "Static shared-library linkage resolver",
		Long: `pkglink determines, without running a binary or invoking a dynamic
linker, which shared libraries an executable or library will load at
runtime and where each of them currently resolves on disk.

It parses ELF, Mach-O (including fat/universal containers) and PE files
byte by byte, replicates each platform's search-path semantics
(RPATH/RUNPATH precedence, @rpath/@loader_path/@executable_path,
$ORIGIN/$LIB) and crawls the transitive dependency closure. Results feed
package-build pipelines that decide whether load paths need rewriting or
whether a binary links more than it should.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	cmd.AddCommand(newDepsCmd())
	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newDepsCmd() *cobra.Command {
	var (
		outputFormat string
		arch         string
		sysroot      string
		ldPath       string
		noRecurse    bool
		namesOnly    bool
		crossCheck   bool
		configFile   string
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "deps <binary>",
		Short: "Resolve the shared-library dependencies of a binary",
		Long: `Resolve every shared library the given binary will load, transitively,
and report where each one currently resolves on disk.

A dependency that cannot be found on any searched path is reported with
an empty resolved path; that is a finding, not a parse failure, so the
two are never conflated.

Exit codes:
  0 - All dependencies resolved
  1 - One or more dependencies could not be resolved
  2 - Invalid arguments or configuration error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runDeps(args[0], depsOptions{
				format:     outputFormat,
				arch:       arch,
				sysroot:    sysroot,
				ldPath:     ldPath,
				noRecurse:  noRecurse,
				namesOnly:  namesOnly,
				crossCheck: crossCheck,
				configFile: configFile,
				verbose:    verbose,
			})
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format (text, json)")
	cmd.Flags().StringVar(&arch, "arch", "", "Architecture slice for fat Mach-O binaries (x86_64, arm64, ...)")
	cmd.Flags().StringVar(&sysroot, "sysroot", "", "Build prefix treated as the sysroot boundary")
	cmd.Flags().StringVar(&ldPath, "ld-path", "", "Colon-joined loader search path (the engine reads no environment)")
	cmd.Flags().BoolVar(&noRecurse, "no-recurse", false, "Resolve direct dependencies only")
	cmd.Flags().BoolVar(&namesOnly, "names-only", false, "Print as-declared names without resolving")
	cmd.Flags().BoolVar(&crossCheck, "cross-check", false, "Diff the raw parser against the stdlib-backed one")
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	return cmd
}

func newClassifyCmd() *cobra.Command {
	var noFollow bool

	cmd := &cobra.Command{
		Use:   "classify <file>...",
		Short: "Detect the binary container format of files",
		Long: `Inspect each file's leading magic bytes and print its container format:
ELF32, ELF64, MachO32, MachO64, MachOFat, PE or Unknown. Unreadable,
truncated and non-binary files classify as Unknown rather than erroring.`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			for _, path := range args {
				var format binfmt.Format
				if noFollow {
					format = binfmt.ClassifyNoFollow(path)
				} else {
					format = binfmt.Classify(path)
				}
				fmt.Printf("%s: %s\n", path, format)
			}
		},
	}

	cmd.Flags().BoolVar(&noFollow, "no-follow", false, "Do not resolve symlinks before classifying")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pkglink version %s\n", version)
			fmt.Printf("Commit: %s\n", commit)
			fmt.Printf("Built: %s\n", buildDate)
		},
	}
}

type depsOptions struct {
	format     string
	arch       string
	sysroot    string
	ldPath     string
	noRecurse  bool
	namesOnly  bool
	crossCheck bool
	configFile string
	verbose    bool
}

// runDeps wires config, logger, reader stack and graph, then reports.
func runDeps(binaryPath string, opts depsOptions) error {
	var config *utils.Config
	var err error
	if opts.configFile != "" {
		config, err = utils.LoadConfigFromFile(opts.configFile)
	} else {
		config, err = utils.LoadDefaultConfig()
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	loggerConfig := utils.LoggerConfig{
		Level:  utils.LogLevel(config.LogLevel),
		Format: utils.LogFormat(config.LogFormat),
	}
	if opts.verbose {
		loggerConfig.Level = utils.LogLevelDebug
	}
	logger := utils.NewLogger(loggerConfig)
	log := logger.WithComponent("pkglink")

	if _, err := os.Stat(binaryPath); err != nil {
		return fmt.Errorf("binary file not found: %s", binaryPath)
	}

	// Flags override config.
	sysroot := config.Resolver.Sysroot
	if opts.sysroot != "" {
		sysroot = opts.sysroot
	}
	arch := config.Resolver.Arch
	if opts.arch != "" {
		arch = opts.arch
	}
	ldPath := config.Resolver.LDPathEntries()
	if opts.ldPath != "" {
		ldPath = splitColonList(opts.ldPath)
	}
	crossCheck := opts.crossCheck || config.Resolver.CrossCheck

	var reader linkage.Reader = linkage.RawReader{}
	if crossCheck {
		reader = &linkage.CrossCheckingReader{
			Primary:   linkage.RawReader{},
			Secondary: linkage.StdlibReader{},
			Logger:    logger.WithComponent("cross-check"),
		}
	}
	reader = &linkage.CachedReader{Inner: reader, Cache: linkage.NewParseCache()}

	graph := linkage.NewGraph(reader, logger.WithComponent("linkage"))
	crawlOpts := linkage.Options{
		Recurse:       !opts.noRecurse,
		Arch:          arch,
		Sysroot:       sysroot,
		LDPath:        ldPath,
		DefaultDirs:   config.Resolver.DefaultDirs,
		PreferSysroot: config.Resolver.PreferSysroot,
	}

	log.Debugf("Resolving linkage for: %s", binaryPath)

	if opts.namesOnly {
		names, err := graph.DeclaredNames(binaryPath, crawlOpts)
		if err != nil {
			return fmt.Errorf("failed to read binary: %w", err)
		}
		return outputNames(binaryPath, names, opts.format)
	}

	links, err := graph.Crawl(binaryPath, crawlOpts)
	if err != nil {
		return fmt.Errorf("failed to resolve linkage: %w", err)
	}

	if err := outputLinks(binaryPath, links, opts.format); err != nil {
		return fmt.Errorf("failed to output results: %w", err)
	}

	missing := 0
	for _, link := range links {
		if link.Path == "" {
			missing++
		}
	}
	if missing > 0 {
		log.Warnf("%d of %d dependencies could not be resolved", missing, len(links))
		os.Exit(1)
	}
	return nil
}

func splitColonList(joined string) []string {
	var out []string
	for _, entry := range strings.Split(joined, ":") {
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// outputLinks prints the resolved linkage set in the requested format.
func outputLinks(binaryPath string, links []linkage.ResolvedLinkage, format string) error {
	switch format {
	case "json":
		output := map[string]interface{}{
			"binary":    binaryPath,
			"timestamp": time.Now().Format(time.RFC3339),
			"linkages":  links,
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(output)
	case "text":
		fmt.Printf("%s:\n", binaryPath)
		for _, link := range links {
			switch {
			case link.Path == "":
				fmt.Printf("\t%s => not found\n", link.Name)
			case link.InSysroot:
				fmt.Printf("\t%s => %s (sysroot)\n", link.Name, link.Path)
			default:
				fmt.Printf("\t%s => %s\n", link.Name, link.Path)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// outputNames prints the as-declared dependency names.
func outputNames(binaryPath string, names []string, format string) error {
	switch format {
	case "json":
		output := map[string]interface{}{
			"binary":       binaryPath,
			"dependencies": names,
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(output)
	case "text":
		fmt.Printf("%s:\n", binaryPath)
		for _, name := range names {
			fmt.Printf("\t%s\n", name)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
