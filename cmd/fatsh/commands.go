package main

import (
	"fmt"
	"os"

	"github.com/opslab-sim/coresim/internal/fatfs"
	"github.com/opslab-sim/coresim/internal/telemetry"
)

type commandFunc func(sh *shell, args []string) error

var commands = map[string]commandFunc{
	"mount":   cmdMount,
	"unmount": cmdUnmount,
	"mkdir":   cmdMkdir,
	"rmdir":   cmdRmdir,
	"touch":   cmdTouch,
	"rm":      cmdRm,
	"cp":      cmdCp,
	"cat":     cmdCat,
	"ls":      cmdLs,
	"find":    cmdFind,
	"df":      cmdDf,
	"fsck":    cmdFsck,
}

func cmdMount(sh *shell, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: mount <path>")
	}
	if sh.fs != nil {
		return fatfs.ErrAlreadyMounted
	}
	_, tracePath := fatfs.SidecarPaths(args[0], sh.root)
	trace := telemetry.NewWriter(tracePath)
	fs, err := fatfs.Mount(args[0], fatfs.MountOptions{Root: sh.root, Trace: trace})
	if err != nil {
		return err
	}
	sh.fs = fs
	fmt.Printf("mounted %s\n", args[0])
	return nil
}

func cmdUnmount(sh *shell, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: unmount")
	}
	if sh.fs == nil {
		return fatfs.ErrNotMounted
	}
	err := sh.fs.Unmount()
	sh.fs = nil
	if err != nil {
		return err
	}
	fmt.Println("unmounted")
	return nil
}

func (sh *shell) requireMounted() (*fatfs.Filesystem, error) {
	if sh.fs == nil {
		return nil, fatfs.ErrNotMounted
	}
	return sh.fs, nil
}

func cmdMkdir(sh *shell, args []string) error {
	fs, err := sh.requireMounted()
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: mkdir <path>")
	}
	if err := fs.Mkdir(args[0]); err != nil {
		return err
	}
	fmt.Printf("created directory %s\n", args[0])
	return nil
}

func cmdRmdir(sh *shell, args []string) error {
	fs, err := sh.requireMounted()
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: rmdir <path>")
	}
	if err := fs.Rmdir(args[0]); err != nil {
		return err
	}
	fmt.Printf("removed directory %s\n", args[0])
	return nil
}

func cmdTouch(sh *shell, args []string) error {
	fs, err := sh.requireMounted()
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: touch <path>")
	}
	if err := fs.Touch(args[0]); err != nil {
		return err
	}
	return nil
}

func cmdRm(sh *shell, args []string) error {
	fs, err := sh.requireMounted()
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: rm <path>")
	}
	if err := fs.Rm(args[0]); err != nil {
		return err
	}
	return nil
}

func cmdCp(sh *shell, args []string) error {
	fs, err := sh.requireMounted()
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: cp <host-path> <image-path>")
	}
	if err := fs.Cp(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("copied %s to %s\n", args[0], args[1])
	return nil
}

func cmdCat(sh *shell, args []string) error {
	fs, err := sh.requireMounted()
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: cat <path>")
	}
	return fs.Cat(args[0], os.Stdout)
}

func cmdLs(sh *shell, args []string) error {
	fs, err := sh.requireMounted()
	if err != nil {
		return err
	}
	path := "/"
	if len(args) == 1 {
		path = args[0]
	} else if len(args) > 1 {
		return fmt.Errorf("usage: ls [path]")
	}
	entries, err := fs.Ls(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "f"
		if e.IsDir {
			kind = "d"
		}
		fmt.Printf("%s  %8d  %s\n", kind, e.Size, e.Name)
	}
	return nil
}

func cmdFind(sh *shell, args []string) error {
	fs, err := sh.requireMounted()
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: find <dir> <name>")
	}
	matches, err := fs.Find(args[0], args[1])
	if err != nil {
		return err
	}
	for _, m := range matches {
		fmt.Println(m.Path)
	}
	return nil
}

func cmdDf(sh *shell, args []string) error {
	fs, err := sh.requireMounted()
	if err != nil {
		return err
	}
	if len(args) != 0 {
		return fmt.Errorf("usage: df")
	}
	d := fs.Df()
	fmt.Printf("%d/%d blocks free (%d/%d bytes)\n", d.FreeBlocks, d.TotalBlocks, d.FreeBytes, d.TotalBytes)
	return nil
}

func cmdFsck(sh *shell, args []string) error {
	fs, err := sh.requireMounted()
	if err != nil {
		return err
	}
	if len(args) != 0 {
		return fmt.Errorf("usage: fsck")
	}
	results := fs.Fsck()
	for _, r := range results {
		fmt.Printf("[%s] %s", r.Status, r.Name)
		if r.Message != "" {
			fmt.Printf(": %s", r.Message)
		}
		fmt.Println()
	}
	fmt.Printf("overall: %s\n", fatfs.Overall(results))
	return nil
}
