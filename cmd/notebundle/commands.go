package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/starford/notebundle/internal"
	"github.com/starford/notebundle/internal/classify"
	"github.com/starford/notebundle/internal/noteservice"
	"github.com/starford/notebundle/internal/richtext"
)

// withApp loads the configuration and runs fn against a wired App. Command
// output goes to stdout, so logs go to stderr.
func withApp(cmd *cli.Command, mutate func(*internal.Config), fn func(*internal.App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if mutate != nil {
		mutate(cfg)
	}
	app, err := internal.NewApp(internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr), internal.WithVersion(version))
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func requireArgs(cmd *cli.Command, n int, usage string) error {
	if cmd.Args().Len() < n {
		return fmt.Errorf("usage: %s %s", cmd.Name, usage)
	}
	return nil
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "new",
		Usage:     "Create an empty package in the library",
		ArgsUsage: "<package>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Initial document text"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, 1, "<package>"); err != nil {
				return err
			}
			return withApp(cmd, nil, func(app *internal.App) error {
				doc, err := app.Service.CreateDocument(ctx, cmd.Args().First(), richtext.Text(cmd.String("text")))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.Root().Writer, doc.Path())
				return nil
			})
		},
	}
}

func attachCommand() *cli.Command {
	return &cli.Command{
		Name:      "attach",
		Usage:     "Copy files into a package's attachments and save it",
		ArgsUsage: "<package> <file>...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, 2, "<package> <file>..."); err != nil {
				return err
			}
			rel := cmd.Args().First()
			return withApp(cmd, nil, func(app *internal.App) error {
				doc, err := app.Service.OpenDocument(ctx, rel)
				if err != nil {
					return err
				}
				for _, file := range cmd.Args().Tail() {
					name, err := doc.AddAttachment(ctx, file)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.Root().Writer, "added %s\n", name)
				}
				if err := doc.SavePackage(ctx); err != nil {
					return err
				}
				return app.Service.Reindex(ctx, rel)
			})
		},
	}
}

func locateCommand() *cli.Command {
	return &cli.Command{
		Name:      "locate",
		Usage:     "Add a map location attachment to a package and save it",
		ArgsUsage: "<package> <lat> <long>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Attachment name", Value: "location"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, 3, "<package> <lat> <long>"); err != nil {
				return err
			}
			lat, err := strconv.ParseFloat(cmd.Args().Get(1), 64)
			if err != nil {
				return fmt.Errorf("latitude: %w", err)
			}
			long, err := strconv.ParseFloat(cmd.Args().Get(2), 64)
			if err != nil {
				return fmt.Errorf("longitude: %w", err)
			}
			rel := cmd.Args().First()
			return withApp(cmd, nil, func(app *internal.App) error {
				doc, err := app.Service.OpenDocument(ctx, rel)
				if err != nil {
					return err
				}
				name, err := doc.AddLocation(cmd.String("name"), classify.Location{Lat: lat, Long: long})
				if err != nil {
					return err
				}
				if err := doc.SavePackage(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.Root().Writer, "added %s\n", name)
				return app.Service.Reindex(ctx, rel)
			})
		},
	}
}

func moveCommand() *cli.Command {
	return &cli.Command{
		Name:      "mv",
		Usage:     "Rename or move a package within the library",
		ArgsUsage: "<package> <new-path>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, 2, "<package> <new-path>"); err != nil {
				return err
			}
			from, to := cmd.Args().Get(0), cmd.Args().Get(1)
			return withApp(cmd, nil, func(app *internal.App) error {
				if err := app.Service.MoveDocument(ctx, from, to); err != nil {
					return err
				}
				fmt.Fprintf(cmd.Root().Writer, "%s -> %s\n", from, to)
				return nil
			})
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List cataloged packages",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tag", Usage: "Only packages carrying this tag"},
			&cli.IntFlag{Name: "limit", Value: 100, Usage: "Maximum rows"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(cmd, nil, func(app *internal.App) error {
				if err := app.Service.Sync(ctx); err != nil {
					return err
				}
				items, total, err := app.Service.ListDocuments(ctx, int(cmd.Int("limit")), 0, cmd.String("tag"), "title")
				if err != nil {
					return err
				}
				printList(cmd.Root().Writer, items, total)
				return nil
			})
		},
	}
}

func printList(w io.Writer, items []noteservice.DocumentListItem, total int) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tTITLE\tATTACHMENTS\tUPDATED")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", it.Path, it.Title, it.Attachments, it.UpdatedAt.Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
	if total > len(items) {
		fmt.Fprintf(w, "(%d of %d)\n", len(items), total)
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a package's text, attachments and backlinks as JSON",
		ArgsUsage: "<package>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, 1, "<package>"); err != nil {
				return err
			}
			rel := cmd.Args().First()
			return withApp(cmd, nil, func(app *internal.App) error {
				if err := app.Service.Reindex(ctx, rel); err != nil {
					return err
				}
				detail, err := app.Service.GetDocument(ctx, rel)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.Root().Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(detail)
			})
		},
	}
}

func openCommand() *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "Open an attachment in the map or default application",
		ArgsUsage: "<package> <attachment>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, 2, "<package> <attachment>"); err != nil {
				return err
			}
			force := func(cfg *internal.Config) { cfg.App.Handoff = true }
			return withApp(cmd, force, func(app *internal.App) error {
				doc, err := app.Service.OpenDocument(ctx, cmd.Args().Get(0))
				if err != nil {
					return err
				}
				action, err := doc.OpenAttachment(ctx, cmd.Args().Get(1))
				if err != nil {
					return err
				}
				switch a := action.(type) {
				case noteservice.OpenLocation:
					fmt.Fprintf(cmd.Root().Writer, "opened map at %g,%g\n", a.Lat, a.Long)
				case noteservice.OpenExternally:
					fmt.Fprintf(cmd.Root().Writer, "opened %s\n", a.Path)
				}
				return nil
			})
		},
	}
}

func reindexCommand() *cli.Command {
	return &cli.Command{
		Name:  "reindex",
		Usage: "Reconcile the catalog with the library on disk",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(cmd, nil, func(app *internal.App) error {
				if err := app.Service.Sync(ctx); err != nil {
					return err
				}
				_, total, err := app.Service.ListDocuments(ctx, 1, 0, "", "")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.Root().Writer, "%d packages indexed\n", total)
				return nil
			})
		},
	}
}
