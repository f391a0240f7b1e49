package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"jverify/internal/compiler"
	"jverify/internal/logger"
	"jverify/pkg/color"
)

// Main entry point for the jverify bytecode verifier.
func main() {
	options := compiler.Compiler{}

	flag.BoolVar(&options.Help, "h", false, "Show help")
	flag.BoolVar(&options.Verbose, "v", false, "Verbose mode: print the frame of every instruction")
	flag.BoolVar(&options.NoColor, "n", false, "No color")
	flag.BoolVar(&options.Generate, "g", false, "Regenerate and print stack map tables")
	flag.StringVar(&options.ConfigFile, "c", "", "Configuration file (default: jverify.toml next to the fixture or above)")
	flag.StringVar(&options.ClassesFile, "classes", "", "Class hierarchy YAML file")

	flag.Parse()
	args := flag.Args()

	logger.Init(options.Verbose, options.NoColor)
	if options.Help {
		fmt.Printf("Usage: %s [options] <fixture.yaml>\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
		return
	}

	if options.NoColor {
		color.EnableColor(false)
	}

	if len(args) == 0 {
		log.Fatal("No input file provided", "help", fmt.Sprintf("%s -h", os.Args[0]))
	}

	options.SourceFile = args[0]

	if err := options.Verify(); err != nil {
		if errors.Is(err, compiler.ErrVerificationFailed) {
			os.Exit(1)
		}
		log.Fatal("Verification failed", "error", err)
	}
}
