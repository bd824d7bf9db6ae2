package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/gocarina/gocsv"
	"github.com/urfave/cli/v2"

	"github.com/dargueta/retrodisk/builder"
	"github.com/dargueta/retrodisk/disks"
	"github.com/dargueta/retrodisk/errors"
	"github.com/dargueta/retrodisk/utilities/compression"
)

func main() {
	log.SetFlags(0)

	app := cli.App{
		Name:  "retrodisk",
		Usage: "Build disk images for vintage computers",
		Commands: []*cli.Command{
			{
				Name:      "build",
				Usage:     "Create an image holding the given files",
				Action:    buildCommand,
				ArgsUsage: "[NAME=]PATH[:TYPE] ...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "system",
						Aliases:  []string{"s"},
						Usage:    "target machine, e.g. appleII or c64",
						EnvVars:  []string{"RETRODISK_SYSTEM"},
						Required: true,
					},
					&cli.StringFlag{
						Name:     "format",
						Aliases:  []string{"f"},
						Usage:    "image format, e.g. po or d64",
						EnvVars:  []string{"RETRODISK_FORMAT"},
						Required: true,
					},
					&cli.StringFlag{
						Name:    "size",
						Aliases: []string{"z"},
						Usage:   "size class; defaults to the smallest the format supports",
						EnvVars: []string{"RETRODISK_SIZE"},
					},
					&cli.StringFlag{
						Name:    "volume",
						Aliases: []string{"n"},
						Usage:   "volume name",
						EnvVars: []string{"RETRODISK_VOLUME"},
					},
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Usage:    "where to write the image",
						Required: true,
					},
					&cli.TimestampFlag{
						Name:   "timestamp",
						Usage:  "date to stamp on the volume and every file, for reproducible images",
						Layout: "2006-01-02T15:04:05",
					},
					&cli.BoolFlag{
						Name:  "compress",
						Usage: "write the image compressed with RLE8 and gzip",
					},
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "only report problems",
					},
				},
			},
			{
				Name:   "formats",
				Usage:  "List every supported system, format and size",
				Action: formatsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "system",
						Usage: "only list this system",
					},
					&cli.BoolFlag{
						Name:  "csv",
						Usage: "print the table as CSV",
					},
				},
			},
			{
				Name:   "shell",
				Usage:  "Assemble an image interactively",
				Action: shellCommandAction,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

// exitError converts a build failure into an error whose exit status is the
// errno of the failure.
func exitError(err error) error {
	return cli.Exit(err.Error(), int(errors.ErrnoOf(err)))
}

func buildCommand(ctx *cli.Context) error {
	args, err := parseFileArgs(ctx.Args().Slice())
	if err != nil {
		return exitError(err)
	}

	request := builder.Request{
		System:     ctx.String("system"),
		Format:     ctx.String("format"),
		Size:       ctx.String("size"),
		VolumeName: ctx.String("volume"),
		Files:      fileRecords(args),
	}
	if stamp := ctx.Timestamp("timestamp"); stamp != nil {
		request.Options.Timestamp = *stamp
	}

	err = buildImage(request, ctx.String("output"), ctx.Bool("compress"), ctx.Bool("quiet"))
	if err != nil {
		return exitError(err)
	}
	return nil
}

// buildImage runs a request and writes the result to `outputPath`. An empty
// size picks the smallest size class the format supports.
func buildImage(request builder.Request, outputPath string, compress, quiet bool) error {
	if request.Size == "" {
		strategy, err := builder.Lookup(request.System, request.Format)
		if err != nil {
			return err
		}
		request.Size = strategy.Sizes()[0]
	}

	result, err := builder.Build(request)
	if err != nil {
		return err
	}

	for _, skipped := range result.Skipped {
		log.Printf("skipped %s: %s", skipped.Name, skipped.Err.Error())
	}

	written, err := writeImage(outputPath, result.Image, compress)
	if err != nil {
		return err
	}

	if !quiet {
		log.Printf(
			"Wrote %s %s image (%s) to %s: %d files, %d skipped, %d bytes.",
			result.Layout.System,
			result.Layout.Format,
			result.Layout.Size,
			outputPath,
			len(result.Entries),
			len(result.Skipped),
			written)
	}
	return nil
}

func writeImage(outputPath string, image []byte, compress bool) (int, error) {
	if compress {
		compressed, err := compression.CompressImageToBytes(image)
		if err != nil {
			return 0, err
		}
		image = compressed
	}

	err := os.WriteFile(outputPath, image, 0o644)
	if err != nil {
		return 0, err
	}
	return len(image), nil
}

func formatsCommand(ctx *cli.Context) error {
	rows := disks.Compatibility()
	if system := ctx.String("system"); system != "" {
		if _, err := disks.GetSystem(system); err != nil {
			return exitError(err)
		}
		filtered := rows[:0]
		for _, row := range rows {
			if row.System == system {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	if ctx.Bool("csv") {
		return gocsv.Marshal(&rows, os.Stdout)
	}
	return printFormats(os.Stdout, rows)
}

func printFormats(w io.Writer, rows []disks.LayoutRow) error {
	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(table, "SYSTEM\tFORMAT\tSIZE\tDRIVER\tGEOMETRY\tIMAGE BYTES")
	for _, row := range rows {
		geometry := fmt.Sprintf("%d x %d bytes", row.TotalBlocks, row.BytesPerBlock)
		if row.Tracks != 0 {
			geometry = fmt.Sprintf("%dT/%dH/%dS, %s", row.Tracks, row.Heads, row.SectorsPerTrack, geometry)
		}
		driver := row.Driver
		if row.Variant != "" {
			driver = strings.Join([]string{row.Driver, row.Variant}, "/")
		}
		fmt.Fprintf(
			table,
			"%s\t%s\t%s\t%s\t%s\t%d\n",
			row.System,
			row.Format,
			row.Size,
			driver,
			geometry,
			int64(row.HeaderBytes)+row.ImageBytes)
	}
	return table.Flush()
}

func shellCommandAction(ctx *cli.Context) error {
	return newSession(os.Stdout).Run()
}
