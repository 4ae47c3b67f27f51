// Command 7zcat writes one entry of a 7z archive to standard output.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go7z-dev/go7z/sevenzip"
)

var (
	password   = flag.String("p", "", "password for encrypted archives")
	memLimitKB = flag.Uint64("m", 0, "decoder memory limit in KB (0 = unlimited)")
	version    = flag.Bool("version", false, "print version and exit")
)

const appVersion = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <archive.7z> <entry>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Writes one entry of a 7z archive to standard output.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s backup.7z docs/readme.txt\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -p secret backup.7z docs/readme.txt\n", os.Args[0])
	}
	flag.Parse()

	if *version {
		fmt.Printf("7zcat version %s\n", appVersion)
		os.Exit(0)
	}

	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "Error: archive path and entry name required\n")
		flag.Usage()
		os.Exit(1)
	}

	rc, err := sevenzip.OpenReaderWithPassword(flag.Arg(0), *password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening archive: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rc.Close() }()

	if *memLimitKB > 0 {
		rc.SetMemoryLimit(*memLimitKB)
	}

	f, err := rc.Open(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening entry: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(os.Stdout, f); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading entry: %v\n", err)
		os.Exit(1)
	}
}
