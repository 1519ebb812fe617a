package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/sift/internal/config"
	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/invoke"
	"github.com/hpungsan/sift/internal/ops"
	"github.com/hpungsan/sift/internal/session"
	"github.com/hpungsan/sift/internal/store"
	"github.com/hpungsan/sift/internal/tools"
	"github.com/hpungsan/sift/internal/web"
)

// env carries what commands need to open a session.
type env struct {
	cfg    *config.Config
	logger hclog.Logger
	dir    string // working directory; the project is found upward from here

	// runner and finder replace process execution and tool discovery in tests.
	runner invoke.Runner
	finder invoke.Finder
}

// session opens the project containing e.dir.
func (e *env) session() (*session.Session, error) {
	p, err := config.FindProject(e.dir)
	if stderrors.Is(err, config.ErrNoProject) {
		return nil, errors.NewInvalidRequest("not inside a sift project (run 'sift init')")
	}
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	return session.Open(session.Options{
		Project: p,
		Config:  e.cfg,
		Logger:  e.logger,
		Runner:  e.runner,
		Finder:  e.finder,
	})
}

// withSession opens a session around fn and closes it afterwards.
func (e *env) withSession(fn func(c *cli.Context, s *session.Session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := e.session()
		if err != nil {
			return outputError(err)
		}
		defer s.Close()
		return fn(c, s)
	}
}

// newCLIApp creates the CLI application with all commands.
// e is nil for help and version output.
func newCLIApp(e *env) *cli.App {
	if e == nil {
		e = &env{cfg: config.DefaultConfig(), logger: hclog.NewNullLogger(), dir: "."}
	}
	app := &cli.App{
		Name:    "sift",
		Usage:   "Run static analyzers and project their findings onto open documents",
		Version: Version,
		Commands: []*cli.Command{
			initCmd(e),
			analyzeCmd(e),
			scanCmd(e),
			runsCmd(e),
			latestCmd(e),
			showCmd(e),
			highlightsCmd(e),
			exportCmd(e),
			importCmd(e),
			clearCmd(e),
			toolsCmd(e),
			serveCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func toolFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "tool",
		Aliases: []string{"t"},
		Usage:   "Tool to run, repeatable (" + strings.Join(tools.Names(), ", ") + "); default: configured tools",
	}
}

// initCmd creates the init command.
func initCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Create .sift/project.yaml and the run store in a directory",
		ArgsUsage: "[dir]",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "id", Value: 1, Usage: "Project id"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Project name (default: directory name)"},
			&cli.StringFlag{Name: "database", Usage: "Store path relative to the project root (default " + config.DefaultDatabase + ")"},
		},
		Action: func(c *cli.Context) error {
			root := e.dir
			if c.NArg() > 0 {
				root = c.Args().First()
				if !filepath.IsAbs(root) {
					root = filepath.Join(e.dir, root)
				}
			}
			root, err := filepath.Abs(root)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			created := false
			p, err := config.LoadProject(root)
			switch {
			case stderrors.Is(err, config.ErrNoProject):
				if c.Int64("id") <= 0 {
					return outputError(errors.NewInvalidRequest("id must be a positive integer"))
				}
				name := c.String("name")
				if name == "" {
					name = filepath.Base(root)
				}
				p = &config.Project{ID: c.Int64("id"), Name: name, Database: c.String("database")}
				if err := config.WriteProject(root, p); err != nil {
					return outputError(errors.NewInternal(err))
				}
				created = true
			case err != nil:
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			st, err := store.Create(p.DatabasePath(), store.Options{Logger: e.logger, Config: e.cfg})
			if err != nil {
				return outputError(err)
			}
			if err := st.Close(); err != nil {
				return outputError(errors.NewInternal(err))
			}

			return outputJSON(c, map[string]any{
				"root":       root,
				"project_id": p.ID,
				"name":       p.Name,
				"database":   p.DatabasePath(),
				"created":    created,
			})
		},
	}
}

// analyzeCmd creates the analyze command.
func analyzeCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Run analysis tools on one file and store the results",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			toolFlag(),
			&cli.StringFlag{Name: "source", Usage: "Label recorded on stored runs"},
		},
		Action: e.withSession(func(c *cli.Context, s *session.Session) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("file is required"))
			}
			output, err := ops.Analyze(c.Context, s, ops.AnalyzeInput{
				File:   e.resolve(c.Args().First()),
				Tools:  c.StringSlice("tool"),
				Source: c.String("source"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// scanCmd creates the scan command.
func scanCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:   "scan",
		Usage:  "Run analysis tools over the whole project",
		Flags:  []cli.Flag{toolFlag()},
		Action: e.withSession(func(c *cli.Context, s *session.Session) error {
			output, err := ops.Scan(c.Context, s, ops.ScanInput{Tools: c.StringSlice("tool")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// runsCmd creates the runs command.
func runsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List stored runs, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tool", Aliases: []string{"t"}, Usage: "Only runs of this tool"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Skip first N results"},
		},
		Action: e.withSession(func(c *cli.Context, s *session.Session) error {
			output, err := ops.ListRuns(c.Context, s, ops.ListInput{
				Tool:   c.String("tool"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// latestCmd creates the latest command.
func latestCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "latest",
		Usage: "Most recent run per tool",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tool", Aliases: []string{"t"}, Usage: "Only this tool"},
			&cli.BoolFlag{Name: "findings", Usage: "Include findings"},
		},
		Action: e.withSession(func(c *cli.Context, s *session.Session) error {
			output, err := ops.Latest(c.Context, s, ops.LatestInput{
				Tool:            c.String("tool"),
				IncludeFindings: c.Bool("findings"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// showCmd creates the show command.
func showCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one run with its findings",
		ArgsUsage: "<id>",
		Action: e.withSession(func(c *cli.Context, s *session.Session) error {
			id, err := strconv.ParseInt(c.Args().First(), 10, 64)
			if err != nil {
				return outputError(errors.NewInvalidRequest("run id must be an integer"))
			}
			output, err := ops.GetRun(c.Context, s, ops.GetRunInput{ID: id})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// highlightsCmd creates the highlights command.
func highlightsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "highlights",
		Usage:     "Project stored findings onto a document",
		ArgsUsage: "<document>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "open", Usage: "Other open documents, repeatable (used to detect ambiguous paths)"},
		},
		Action: e.withSession(func(c *cli.Context, s *session.Session) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("document is required"))
			}
			open := make([]string, 0, len(c.StringSlice("open")))
			for _, d := range c.StringSlice("open") {
				open = append(open, e.resolve(d))
			}
			output, err := ops.Highlights(c.Context, s, ops.HighlightsInput{
				Document:      e.resolve(c.Args().First()),
				OpenDocuments: open,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// exportCmd creates the export command.
func exportCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export stored runs to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path (default: ~/.sift/exports/<project>-<time>.jsonl)"},
			&cli.StringFlag{Name: "tool", Aliases: []string{"t"}, Usage: "Only runs of this tool"},
		},
		Action: e.withSession(func(c *cli.Context, s *session.Session) error {
			path := c.String("path")
			if path != "" {
				path = e.resolve(path)
			}
			output, err := ops.Export(c.Context, s, ops.ExportInput{Path: path, Tool: c.String("tool")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// importCmd creates the import command.
func importCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Append the runs of a JSONL export file",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: string(ops.ImportModeAtomic), Usage: "atomic|skip"},
		},
		Action: e.withSession(func(c *cli.Context, s *session.Session) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("path is required"))
			}
			output, err := ops.Import(c.Context, s, ops.ImportInput{
				Path: e.resolve(c.Args().First()),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// clearCmd creates the clear command.
func clearCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete every stored run of the project",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Confirm the deletion"},
		},
		Action: e.withSession(func(c *cli.Context, s *session.Session) error {
			output, err := ops.Clear(c.Context, s, ops.ClearInput{Confirm: c.Bool("yes")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// toolsCmd creates the tools command.
func toolsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "tools",
		Usage: "Show where each analysis tool was found and its version",
		Action: e.withSession(func(c *cli.Context, s *session.Session) error {
			output, err := ops.Tools(c.Context, s)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}),
	}
}

// serveCmd creates the serve command.
func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the local web viewer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 7878, Usage: "Port to listen on"},
		},
		Action: e.withSession(func(c *cli.Context, s *session.Session) error {
			srv, err := web.NewServer(s, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if err := web.Run(srv, e.logger.Named("web")); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		}),
	}
}

// Helper functions

// resolve makes p absolute against the working directory.
func (e *env) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.dir, p)
}

// outputJSON writes v as indented JSON to the app's writer.
func outputJSON(c *cli.Context, v any) error {
	var w io.Writer = os.Stdout
	if c != nil && c.App != nil && c.App.Writer != nil {
		w = c.App.Writer
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats err as "[CODE] message" with exit status 1.
func outputError(err error) error {
	if siftErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", siftErr.Code, siftErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
