// Package compiler drives verification of method fixture files: it loads
// the configuration and class hierarchy, verifies every method and prints
// the diagnostics.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"jverify/internal/config"
	"jverify/internal/oracle"
	"jverify/pkg/color"
	"jverify/pkg/stackmap"
	"jverify/pkg/verifier"
)

var ErrVerificationFailed = errors.New("verification failed")

type Compiler struct {
	Help        bool   // Show help message
	Verbose     bool   // Print the frame of every instruction
	NoColor     bool   // Disable colored output
	Generate    bool   // Regenerate and print stack map tables
	ConfigFile  string // Path to jverify.toml, searched for when empty
	ClassesFile string // Path to a class hierarchy YAML file
	SourceFile  string // Path to the method fixture file

	Out io.Writer // defaults to stdout
}

// outcome is the verification of one method.
type outcome struct {
	method *verifier.Method
	result *verifier.Result
	diags  []verifier.Diagnostic
}

// Verify verifies every method of the fixture file and prints a report.
// It returns ErrVerificationFailed when any method is rejected.
func (opts *Compiler) Verify() error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	log.Info("Processing file", "file", opts.SourceFile)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Generate {
		cfg.ForceStackMaps = true
	}

	classes, err := opts.loadOracle(cfg)
	if err != nil {
		return err
	}

	methods, err := LoadFixtures(opts.SourceFile)
	if err != nil {
		return err
	}
	log.Debug("Loaded fixtures", "methods", len(methods), "workers", cfg.Workers, "config", cfg.Path)

	outcomes, err := verifyAll(context.Background(), methods, classes, cfg)
	if err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if !o.result.OK() {
			failed++
		}
		opts.report(out, o)
	}

	if failed > 0 {
		fmt.Fprintln(out, color.Error(fmt.Sprintf("%d of %d methods rejected", failed, len(outcomes))))
		return fmt.Errorf("%w: %d of %d methods", ErrVerificationFailed, failed, len(outcomes))
	}
	fmt.Fprintln(out, color.Success(fmt.Sprintf("%d methods verified", len(outcomes))))
	return nil
}

func (opts *Compiler) loadConfig() (*config.Config, error) {
	if opts.ConfigFile != "" {
		return config.Load(opts.ConfigFile)
	}
	return config.Find(filepath.Dir(opts.SourceFile))
}

func (opts *Compiler) loadOracle(cfg *config.Config) (*oracle.Table, error) {
	classes := oracle.New()
	if opts.ClassesFile != "" {
		var err error
		if classes, err = oracle.LoadFile(opts.ClassesFile); err != nil {
			return nil, err
		}
	}
	for _, c := range cfg.OracleClasses() {
		classes.Add(c)
	}
	return classes, nil
}

// verifyAll runs the verifier on every method, at most cfg.Workers at a
// time. Outcomes keep the order of methods.
func verifyAll(ctx context.Context, methods []*verifier.Method, classes *oracle.Table, cfg *config.Config) ([]outcome, error) {
	outcomes := make([]outcome, len(methods))
	vc := cfg.Verifier()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i, m := range methods {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d := &verifier.Diagnostics{}
			res := verifier.Verify(m, classes, vc, d)
			outcomes[i] = outcome{method: m, result: res, diags: d.List()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (opts *Compiler) report(out io.Writer, o outcome) {
	status := color.GreenText("ok")
	if !o.result.OK() {
		status = color.BrightRedText("rejected")
	}
	fmt.Fprintf(out, "%s %s %s\n", color.BoldText(o.method.String()), status, color.GrayText("("+o.result.Mode.String()+")"))

	for _, d := range o.diags {
		where := color.CyanText(fmt.Sprintf("%d", d.Index))
		if d.Index >= 0 && d.Index < len(o.method.Code) {
			where += " " + color.YellowText(o.method.Code[d.Index].String())
		}
		switch d.Severity {
		case verifier.SeverityDeadCode:
			fmt.Fprintf(out, "  %s: %s\n", where, color.Warning("unreachable code"))
		case verifier.SeverityInternal:
			fmt.Fprintf(out, "  %s: %s\n", where, color.BrightRedText("internal error: ")+d.Err.Error())
		default:
			fmt.Fprintf(out, "  %s: %s\n", where, color.Error(d.Err.Error()))
		}
	}

	if opts.Verbose {
		for i, f := range o.result.Frames {
			if f == nil {
				continue
			}
			fmt.Fprintf(out, "  %s: %-20s %s\n", color.CyanText(fmt.Sprintf("%d", i)), o.method.Code[i].String(), color.GrayText(f.String()))
		}
		fmt.Fprintf(out, "  max stack %d\n", o.result.MaxStack)
	}

	if opts.Generate && o.result.Regenerated {
		opts.printStackMap(out, o)
	}
}

func (opts *Compiler) printStackMap(out io.Writer, o outcome) {
	fmt.Fprintln(out, color.GreenText("  StackMapTable:"))
	for _, e := range o.result.StackMap {
		fmt.Fprintf(out, "    %s\n", e)
	}

	code := slices.Clone(o.method.Code)
	for i := range code {
		code[i].Offset = o.result.Offsets[i]
	}
	data, err := stackmap.Marshal(o.result.StackMap, stackmap.NewPool(), code)
	if err != nil {
		log.Error("Cannot encode stack map", "method", o.method.String(), "error", err)
		return
	}
	fmt.Fprintf(out, "    %s\n", color.Code(fmt.Sprintf("% x", data)))
}
