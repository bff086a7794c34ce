// Command goifs runs single operations on a goifs volume image.
// Each invocation mounts the image, performs one command and unmounts it
// again, so relative paths are resolved from --cwd.
package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/aligator/goifs"
	"github.com/aligator/goifs/blockdev"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func run(args []string) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}
	return newApp(config).Run(args)
}

func newApp(config *Config) *cli.App {
	return &cli.App{
		Name:  "goifs",
		Usage: "manage a goifs volume image",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "volume",
				Aliases: []string{"f"},
				Usage:   "the volume image",
				Value:   config.Volume,
			},
			&cli.Uint64Flag{
				Name:  "block-size",
				Usage: "the block size of the image",
				Value: config.BlockSize,
			},
			&cli.StringFlag{
				Name:  "cwd",
				Usage: "the working directory on the volume for relative paths",
				Value: "/",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "one of the logrus levels",
				Value: config.LogLevel,
			},
		},
		Before: func(ctx *cli.Context) error {
			level, err := logrus.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{{
			Name:      "format",
			Usage:     "create the image and an empty filesystem on it",
			ArgsUsage: " ",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  "blocks",
					Usage: "the number of blocks of the image",
					Value: config.BlockCount,
				},
			},
			Action: format,
		}, {
			Name:   "info",
			Usage:  "print the layout and usage of the volume",
			Action: withVolume(printInfo),
		}, {
			Name:      "pwd",
			Usage:     "print the working directory",
			ArgsUsage: " ",
			Action: withVolume(func(v *goifs.Volume, ctx *cli.Context) error {
				fmt.Fprintln(ctx.App.Writer, v.WorkingDirectory())
				return nil
			}),
		}, {
			Name:      "ls",
			Usage:     "list a directory",
			ArgsUsage: "[path]",
			Action:    withVolume(list),
		}, {
			Name:      "mkdir",
			Usage:     "create a directory",
			ArgsUsage: "path",
			Action: withVolume(func(v *goifs.Volume, ctx *cli.Context) error {
				return v.Mkdir(arg(ctx, 0))
			}),
		}, {
			Name:      "mkfile",
			Usage:     "create a file reserving size bytes",
			ArgsUsage: "path [size]",
			Action: withVolume(func(v *goifs.Volume, ctx *cli.Context) error {
				size, err := sizeArg(ctx, 1, true)
				if err != nil {
					return err
				}
				return v.Mkfile(arg(ctx, 0), size)
			}),
		}, {
			Name:      "rm",
			Usage:     "remove a file",
			ArgsUsage: "path",
			Action: withVolume(func(v *goifs.Volume, ctx *cli.Context) error {
				return v.Remove(arg(ctx, 0))
			}),
		}, {
			Name:      "rmdir",
			Usage:     "remove a directory and everything in it",
			ArgsUsage: "path",
			Action: withVolume(func(v *goifs.Volume, ctx *cli.Context) error {
				return v.RemoveDir(arg(ctx, 0))
			}),
		}, {
			Name:      "cp",
			Usage:     "copy a file or directory",
			ArgsUsage: "source destination",
			Action: withVolume(func(v *goifs.Volume, ctx *cli.Context) error {
				return v.Copy(arg(ctx, 0), arg(ctx, 1))
			}),
		}, {
			Name:      "mv",
			Usage:     "move a file or directory",
			ArgsUsage: "source destination",
			Action: withVolume(func(v *goifs.Volume, ctx *cli.Context) error {
				return v.Move(arg(ctx, 0), arg(ctx, 1))
			}),
		}, {
			Name:      "resize",
			Usage:     "set the size of a file",
			ArgsUsage: "path size",
			Action: withVolume(func(v *goifs.Volume, ctx *cli.Context) error {
				size, err := sizeArg(ctx, 1, false)
				if err != nil {
					return err
				}
				return v.Resize(arg(ctx, 0), size)
			}),
		}, {
			Name:      "reserve",
			Usage:     "set the reserved capacity of a file or directory",
			ArgsUsage: "path size",
			Action: withVolume(func(v *goifs.Volume, ctx *cli.Context) error {
				size, err := sizeArg(ctx, 1, false)
				if err != nil {
					return err
				}
				return v.Reserve(arg(ctx, 0), size)
			}),
		}, {
			Name:      "cpin",
			Aliases:   []string{"import"},
			Usage:     "copy a host file onto the volume",
			ArgsUsage: "host-path destination",
			Action: withVolume(func(v *goifs.Volume, ctx *cli.Context) error {
				return v.Import(afero.NewOsFs(), arg(ctx, 0), arg(ctx, 1))
			}),
		}, {
			Name:      "cpout",
			Aliases:   []string{"export"},
			Usage:     "copy a file from the volume to the host",
			ArgsUsage: "source host-path",
			Action: withVolume(func(v *goifs.Volume, ctx *cli.Context) error {
				return v.Export(arg(ctx, 0), afero.NewOsFs(), arg(ctx, 1))
			}),
		}, {
			Name:      "walk",
			Usage:     "print every file below a directory",
			ArgsUsage: "[path]",
			Action:    withVolume(walk),
		}},
	}
}

func arg(ctx *cli.Context, i int) string {
	return ctx.Args().Get(i)
}

func sizeArg(ctx *cli.Context, i int, optional bool) (uint64, error) {
	raw := arg(ctx, i)
	if raw == "" && optional {
		return 0, nil
	}

	size, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing size %q: %w", raw, err)
	}
	return size, nil
}

// withVolume mounts the volume image for the duration of action.
func withVolume(action func(v *goifs.Volume, ctx *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		dev, err := blockdev.Open(afero.NewOsFs(), ctx.String("volume"), ctx.Uint64("block-size"))
		if err != nil {
			return err
		}
		defer dev.Close()

		v, err := goifs.Mount(dev)
		if err != nil {
			return fmt.Errorf("mounting `%s`: %w", dev.Name(), err)
		}

		if err := v.ChangeDirectory(ctx.String("cwd")); err != nil {
			v.Unmount()
			return err
		}

		if err := action(v, ctx); err != nil {
			v.Unmount()
			return err
		}
		return v.Unmount()
	}
}

func format(ctx *cli.Context) error {
	dev, err := blockdev.Create(afero.NewOsFs(), ctx.String("volume"), ctx.Uint64("block-size"), ctx.Uint64("blocks"))
	if err != nil {
		return err
	}
	defer dev.Close()

	v, err := goifs.Format(dev)
	if err != nil {
		return err
	}
	return v.Unmount()
}

func printInfo(v *goifs.Volume, ctx *cli.Context) error {
	info, err := v.Info()
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(info)
	if err != nil {
		return err
	}
	_, err = ctx.App.Writer.Write(out)
	return err
}

func list(v *goifs.Volume, ctx *cli.Context) error {
	entries, err := v.List(arg(ctx, 0))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Type\tSize\tReserved\tLast Modified\t Name")
	for _, e := range entries {
		name := e.Name
		if e.Type == goifs.TypeDirectory {
			name += "/"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t %s\n", e.Type, e.Size, e.Reserved, e.Modified.Format("2006-01-02 15:04:05"), name)
	}
	return w.Flush()
}

// walk prints every path below the given directory, using the volume through
// its afero interface.
func walk(v *goifs.Volume, ctx *cli.Context) error {
	root := arg(ctx, 0)
	if root == "" {
		root = v.WorkingDirectory()
	}

	return afero.Walk(goifs.NewFs(v), root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		fmt.Fprintln(ctx.App.Writer, path, info.IsDir(), info.Size(), info.ModTime())
		return nil
	})
}
