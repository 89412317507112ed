// Command chtl compiles CHTL sources into HTML/CSS/JS documents.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dpotapov/chtl"
	"github.com/dpotapov/chtl/cjmod"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitCompile = 2
)

var (
	flagDebug    bool
	flagMinify   bool
	flagFragment bool
	flagOutput   string
)

func main() {
	root := &cobra.Command{
		Use:           "chtl [options] <input.chtl> [output.html]",
		Short:         "CHTL compiler",
		Long:          "chtl compiles CHTL sources into HTML, CSS and JavaScript.",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCompile,
	}
	root.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "verbose diagnostics")
	root.Flags().BoolVarP(&flagMinify, "minify", "m", false, "disable pretty-print")
	root.Flags().BoolVarP(&flagFragment, "fragment", "f", false, "SPA mode (no html/head/body shell)")
	root.Flags().StringVarP(&flagOutput, "output", "o", "", `explicit output path ("-" = stdout)`)

	root.AddCommand(serveCmd(), packCmd(), modCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if _, ok := err.(*compileError); ok {
			os.Exit(exitCompile)
		}
		os.Exit(exitUsage)
	}
}

// compileError marks failures that exit with code 2.
type compileError struct{ msg string }

func (e *compileError) Error() string { return e.msg }

func newLogger() *zap.Logger {
	if !flagDebug {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func buildCompiler(input string) (*chtl.Compiler, *chtl.ProjectConfig, error) {
	proj, err := chtl.LoadProjectConfig(input)
	if err != nil {
		return nil, nil, err
	}
	opts := chtl.Options{
		Pretty:   !flagMinify,
		Fragment: flagFragment,
		Logger:   newLogger(),
		Debug:    flagDebug,
	}
	proj.Apply(&opts)
	if flagMinify {
		opts.Pretty = false
	}
	if flagFragment {
		opts.Fragment = true
	}
	return chtl.New(opts), proj, nil
}

func runCompile(cmd *cobra.Command, args []string) error {
	input := args[0]
	c, proj, err := buildCompiler(input)
	if err != nil {
		return err
	}

	res, err := c.CompileFile(context.Background(), input)
	if res != nil {
		for _, d := range res.Diagnostics {
			line := d.Error()
			if flagDebug && (d.Phase != "" || d.Component != "") {
				line += fmt.Sprintf(" [phase=%s component=%s]", d.Phase, d.Component)
			}
			fmt.Fprintln(os.Stderr, line)
		}
		if n := len(res.Diagnostics); n > 0 {
			fmt.Fprintf(os.Stderr, "%d error(s)\n", n)
		}
	}
	if err != nil {
		return &compileError{msg: err.Error()}
	}

	out := flagOutput
	if out == "" && len(args) == 2 {
		out = args[1]
	}
	if out == "" && proj.Output != "" {
		out = proj.Output
	}
	if out == "" {
		out = strings.TrimSuffix(input, ".chtl") + ".html"
	}
	if out == "-" {
		fmt.Print(res.Document)
		return nil
	}
	if err := os.WriteFile(out, []byte(res.Document), 0o644); err != nil {
		return err
	}
	return nil
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve <input.chtl>",
		Short: "serve the compiled page with live reload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, proj, err := buildCompiler(args[0])
			if err != nil {
				return err
			}
			if addr == "" {
				addr = proj.Serve.Addr
			}
			if addr == "" {
				addr = "localhost:8080"
			}
			srv := chtl.NewDevServer(c, args[0], newLogger())
			return srv.Run(context.Background(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default localhost:8080)")
	return cmd
}

func packCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "pack <module-dir>",
		Short: "pack a module directory into a .cmod/.cjmod archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := strings.TrimRight(args[0], "/")
			m, err := cjmod.Load(dir)
			if err != nil {
				return err
			}
			defer m.Close()
			if out == "" {
				ext := ".cmod"
				if m.Kind == cjmod.KindCJMOD {
					ext = ".cjmod"
				}
				out = dir + ext
			}
			if err := cjmod.Pack(dir, out); err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "archive path")
	return cmd
}

func modCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mod",
		Short: "module utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "info <module-path>",
		Short: "print parsed module metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := cjmod.Load(args[0])
			if err != nil {
				return err
			}
			defer m.Close()
			printModule(m, "")
			return nil
		},
	})
	return cmd
}

func printModule(m *cjmod.Module, indent string) {
	fmt.Printf("%s%s (%s)\n", indent, m.Name, m.Kind)
	if m.Meta != nil {
		info := m.Meta.Info
		fmt.Printf("%s  version: %s\n", indent, info.Version)
		if info.Description != "" {
			fmt.Printf("%s  description: %s\n", indent, info.Description)
		}
		if info.Author != "" {
			fmt.Printf("%s  author: %s\n", indent, info.Author)
		}
		if info.License != "" {
			fmt.Printf("%s  license: %s\n", indent, info.License)
		}
		for _, e := range m.Meta.Exports {
			fmt.Printf("%s  export: %s %s\n", indent, e.Tag, e.Name)
		}
	}
	for _, sub := range m.Subs {
		printModule(sub, indent+"  ")
	}
}
