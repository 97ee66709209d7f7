package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tis24dev/notionsave/internal/types"
	"github.com/tis24dev/notionsave/internal/version"
)

const (
	configSourceDefault = "default path"
	configSourceFlag    = "specified via --config/-c flag"
)

// Args holds the parsed command-line arguments. Zero values mean "not given"
// so settings from the environment or the settings file can fill them in.
type Args struct {
	ConfigPath       string
	ConfigPathSource string
	ConfigExplicit   bool

	OutputDir string
	SpaceID   string
	BlockID   string

	ExportType      string
	Recursive       bool
	IncludeContents string
	ExportComments  bool
	Extract         bool

	NonInteractive bool
	ForceCLI       bool

	LogLevel types.LogLevel
	LogFile  string

	ShowVersion bool
	ShowHelp    bool
}

// Parse parses os.Args and exits on flag errors, like flag.CommandLine does.
func Parse() *Args {
	args, err := ParseArgs(os.Args[1:], os.Stderr, os.Args[0])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(types.ExitSuccess.Int())
		}
		os.Exit(types.ExitConfigError.Int())
	}
	return args
}

// ParseArgs parses argv into Args. Usage and errors are written to w.
func ParseArgs(argv []string, w io.Writer, argv0 string) (*Args, error) {
	args := &Args{}
	fs := flag.NewFlagSet(argv0, flag.ContinueOnError)
	fs.SetOutput(w)

	configFlag := newStringFlag(DefaultConfigPath())
	fs.Var(configFlag, "config", "Path to the settings file")
	fs.Var(configFlag, "c", "Path to the settings file (shorthand)")

	fs.StringVar(&args.OutputDir, "output-dir", "", "Existing directory that receives the export archive")
	fs.StringVar(&args.OutputDir, "o", "", "Output directory (shorthand)")
	fs.StringVar(&args.SpaceID, "space-id", "", "Workspace id to export (skips the workspace prompt)")
	fs.StringVar(&args.SpaceID, "s", "", "Workspace id (shorthand)")
	fs.StringVar(&args.BlockID, "block-id", "", "Export a single page/block instead of the whole workspace")
	fs.StringVar(&args.BlockID, "b", "", "Block id (shorthand)")

	fs.StringVar(&args.ExportType, "export-type", "", "Export format (markdown|html)")
	fs.BoolVar(&args.Recursive, "recursive", false, "Include child pages of the block (block export only)")
	fs.StringVar(&args.IncludeContents, "include-contents", "", "Attachment policy for block export (no_files|everything)")
	fs.BoolVar(&args.ExportComments, "export-comments", false, "Include comments (block export only)")
	fs.BoolVar(&args.Extract, "extract", false, "Unpack the archive into the output directory after download")

	fs.BoolVar(&args.NonInteractive, "non-interactive", false, "Never prompt; fail when input would be required")
	fs.BoolVar(&args.ForceCLI, "cli", false, "Use plain terminal prompts instead of the TUI")

	var logLevelStr string
	fs.StringVar(&logLevelStr, "log-level", "", "Log level (debug|info|warning|error|critical)")
	fs.StringVar(&logLevelStr, "l", "", "Log level (shorthand)")
	fs.StringVar(&args.LogFile, "log-file", "", "Also write the log to this file (rotated)")

	fs.BoolVar(&args.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&args.ShowVersion, "v", false, "Show version information (shorthand)")
	fs.BoolVar(&args.ShowHelp, "help", false, "Show help message")
	fs.BoolVar(&args.ShowHelp, "h", false, "Show help message (shorthand)")

	fs.Usage = func() { printHelp(w, fs, argv0) }

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		err := fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
		fmt.Fprintln(w, err)
		return nil, err
	}
	if args.ShowHelp {
		fs.Usage()
	}

	args.ConfigPath = configFlag.value
	args.ConfigExplicit = configFlag.set
	if configFlag.set {
		args.ConfigPathSource = configSourceFlag
	} else {
		args.ConfigPathSource = configSourceDefault
	}

	if logLevelStr != "" {
		args.LogLevel = types.ParseLogLevel(logLevelStr)
	} else {
		args.LogLevel = types.LogLevelNone // Will be overridden by config
	}

	args.ExportType = strings.ToLower(strings.TrimSpace(args.ExportType))
	if args.ExportType != "" && !types.ExportFormat(args.ExportType).Valid() {
		err := fmt.Errorf("invalid --export-type %q (want markdown or html)", args.ExportType)
		fmt.Fprintln(w, err)
		return nil, err
	}
	switch args.IncludeContents {
	case "", "no_files", "everything":
	default:
		err := fmt.Errorf("invalid --include-contents %q (want no_files or everything)", args.IncludeContents)
		fmt.Fprintln(w, err)
		return nil, err
	}
	return args, nil
}

// DefaultConfigPath returns $HOME/.notionsave.env, or a relative name when
// the home directory is unknown.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".notionsave.env"
	}
	return home + string(os.PathSeparator) + ".notionsave.env"
}

// ShowVersion prints version information to w.
func ShowVersion(w io.Writer) {
	fmt.Fprintln(w, version.Banner())
}

func printHelp(w io.Writer, fs *flag.FlagSet, argv0 string) {
	fmt.Fprintf(w, "Usage: %s [options]\n\n", argv0)
	fmt.Fprintln(w, "Back up a Notion workspace (or a single page) through the export API.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Options:")
	fs.PrintDefaults()
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  NOTION_BACKUP_OUTPUT_DIR, NOTION_BACKUP_SPACE_ID override the settings file.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintf(w, "  %s -o /srv/backups/notion\n", argv0)
	fmt.Fprintf(w, "  %s -o /srv/backups/notion --non-interactive --space-id <id>\n", argv0)
	fmt.Fprintf(w, "  %s -o . -b <block-id> --export-type markdown --recursive\n", argv0)
}

type stringFlag struct {
	value string
	set   bool
}

func newStringFlag(defaultValue string) *stringFlag {
	return &stringFlag{value: defaultValue}
}

func (s *stringFlag) String() string {
	if s == nil {
		return ""
	}
	return s.value
}

func (s *stringFlag) Set(val string) error {
	s.value = val
	s.set = true
	return nil
}
