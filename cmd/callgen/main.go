// Package main implements the callgen inspection binary.
//
// It prints the lowering tables the code generator consults for a target:
// hardware swizzles, raw syscall sequences and sample ABI classifications.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/segmentio/encoding/json"

	"github.com/GriffinCanCode/callgen/pkg/logger"
	"github.com/GriffinCanCode/callgen/pkg/target"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "swizzle", "syscalls", "abi":
		if err := inspect(os.Stdout, cmd, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("callgen version %s\n", version)
	case "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage(os.Stderr)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `callgen - inspect procedure and call lowering tables

Usage:
    callgen swizzle  [options]   Hardware runtime swizzle table
    callgen syscalls [options]   Raw syscall sequences
    callgen abi      [options]   Sample parameter classifications
    callgen version              Show version
    callgen help                 Show this help message

Options:
    -config <file>    TOML target description
    -target <a-os>    Target such as amd64-linux (overrides -config)
    -features <list>  Extra comma separated ISA features
    -json             Emit JSON
    -v                Verbose output`)
}

type options struct {
	config   string
	target   string
	features string
	json     bool
	verbose  bool
}

func parseOptions(cmd string, args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&o.config, "config", "", "")
	fs.StringVar(&o.target, "target", "", "")
	fs.StringVar(&o.features, "features", "", "")
	fs.BoolVar(&o.json, "json", false, "")
	fs.BoolVar(&o.verbose, "v", false, "")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	return o, nil
}

// resolveTarget builds the target from the config file, then applies the
// command line overrides.
func resolveTarget(o options) (*target.Target, error) {
	cfg := &target.Config{Arch: string(target.ArchAMD64), OS: string(target.OSLinux)}
	if o.config != "" {
		var err error
		if cfg, err = target.LoadConfig(o.config); err != nil {
			return nil, err
		}
	}
	if o.target != "" {
		arch, osName, ok := strings.Cut(o.target, "-")
		if !ok {
			return nil, fmt.Errorf("target %q: want arch-os", o.target)
		}
		cfg.Arch, cfg.OS = arch, osName
	}
	if o.features != "" {
		cfg.Features = append(cfg.Features, strings.Split(o.features, ",")...)
	}
	return cfg.Target()
}

func inspect(w io.Writer, cmd string, args []string) error {
	o, err := parseOptions(cmd, args)
	if err != nil {
		return err
	}
	if o.verbose {
		logger.InitDev()
		defer logger.Sync()
	}
	t, err := resolveTarget(o)
	if err != nil {
		return err
	}
	logger.Debug("Inspecting target", "command", cmd, "target", t.String(), "features", t.FeatureList())

	var rows any
	switch cmd {
	case "swizzle":
		rows = swizzleReport(t)
	case "syscalls":
		rows = syscallReport(t)
	case "abi":
		rows = abiReport(t)
	}
	if o.json {
		out, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", out)
		return err
	}
	return writeTable(w, t, rows)
}

func writeTable(w io.Writer, t *target.Target, rows any) error {
	fmt.Fprintf(w, "# %s\n", t)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch rs := rows.(type) {
	case []SwizzleRow:
		fmt.Fprintln(tw, "LANES\tINTRINSIC\tFEATURES\tENABLED")
		for _, r := range rs {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", r.Lanes, r.Intrinsic, strings.Join(r.Features, ","), r.Enabled)
		}
	case []SyscallRow:
		fmt.Fprintln(tw, "FLAVOR\tTEMPLATE\tOPERANDS\tCONSTRAINTS")
		for _, r := range rs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Flavor, r.Template, r.MaxOperands, r.Constraints)
		}
	case []ABIRow:
		fmt.Fprintln(tw, "CONV\tTYPE\tPARAM\tRESULT\tCOPY\tBYVAL")
		for _, r := range rs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%t\n", r.Convention, r.Type, r.Param, r.Result, r.CalleeCopy, r.Byval)
		}
	}
	return tw.Flush()
}
