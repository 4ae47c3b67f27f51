// Command 7zls lists the contents of a 7z archive.
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/go7z-dev/go7z/sevenzip"
)

var (
	password   = flag.String("p", "", "password for encrypted archives")
	showDirs   = flag.Bool("d", false, "include directory entries")
	memLimitKB = flag.Uint64("m", 0, "decoder memory limit in KB (0 = unlimited)")
	version    = flag.Bool("version", false, "print version and exit")
)

const appVersion = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <archive.7z>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Lists the contents of a 7z archive.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *version {
		fmt.Printf("7zls version %s\n", appVersion)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: exactly one archive path required\n")
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

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Size\tModified\t\tName\n")
	for _, f := range rc.File {
		if f.IsDir && !*showDirs {
			continue
		}
		name := f.Name
		if f.IsDir {
			name += "/"
		}
		modified := ""
		if !f.Modified.IsZero() {
			modified = f.Modified.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%d\t%s\t\t%s\n", f.UncompressedSize, modified, name)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing listing: %v\n", err)
		os.Exit(1)
	}
}
