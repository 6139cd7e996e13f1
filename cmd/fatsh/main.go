// Command fatsh is an interactive shell over a FAT-style filesystem
// image: mount, inspect, and mutate one image file at a time.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/opslab-sim/coresim/internal/fatfs"
)

// shell holds the one mounted filesystem, if any, for the session.
type shell struct {
	fs   *fatfs.Filesystem
	root string // -root: where mount-lock/trace sidecars live; "" = next to the image
}

func main() {
	root := flag.String("root", "", "directory for mount-lock and trace sidecar files (default: next to the image)")
	flag.Parse()

	sh := &shell{root: *root}
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("[fatsh]: ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		if cmd == "sai" {
			if sh.fs != nil {
				_ = sh.fs.Unmount()
			}
			break
		}
		sh.dispatch(cmd, args)
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: reading input: %v\n", err)
		os.Exit(1)
	}
}

func (sh *shell) dispatch(cmd string, args []string) {
	handler, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", cmd)
		return
	}
	if err := handler(sh, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
}
