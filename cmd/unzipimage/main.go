package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dargueta/retrodisk/utilities/compression"
)

func main() {
	log.SetFlags(0)

	app := cli.App{
		Name:      "unzipimage",
		Usage:     "Expand an image written by `retrodisk build --compress`",
		ArgsUsage: "INPUT_FILE OUTPUT_FILE",
		Action:    unzipImage,
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func unzipImage(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.Exit("expected an input and an output file", 1)
	}
	sourceFilePath := ctx.Args().Get(0)
	outputFilePath := ctx.Args().Get(1)

	sourceFile, err := os.Open(sourceFilePath)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer sourceFile.Close()

	outFile, err := os.Create(outputFilePath)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer outFile.Close()

	nWritten, err := compression.DecompressImage(sourceFile, outFile)
	if err != nil {
		return cli.Exit("error expanding file: "+err.Error(), 2)
	}

	log.Printf("Expanded %s to %d bytes.", sourceFilePath, nWritten)
	return nil
}
