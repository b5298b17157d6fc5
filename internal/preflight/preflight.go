// Package preflight checks that an encode can start before the engine is
// spawned: the engine binaries resolve on PATH and the output directory
// exists and is writable.
package preflight

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Result reports the outcome of a single check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Err returns nil for a passed check.
func (r Result) Err() error {
	if r.Passed {
		return nil
	}
	return fmt.Errorf("%s: %s", r.Name, r.Detail)
}

// CheckBinary verifies that command resolves to an executable.
func CheckBinary(name, command string) Result {
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{Name: name, Detail: "command not configured"}
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found", command)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckDirectoryAccess verifies that path is an existing directory the
// current user may create files in.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (write ok)", path)}
}

// CheckInput verifies that the source file exists and is readable.
func CheckInput(path string) Result {
	const name = "Input"
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// Encode runs every check an encode needs. preview may be empty.
func Encode(engine, input, output, preview string) []Result {
	results := []Result{
		CheckBinary("Engine", engine),
		CheckInput(input),
		CheckDirectoryAccess("Output directory", filepath.Dir(output)),
	}
	if preview != "" {
		results = append(results, CheckDirectoryAccess("Preview directory", filepath.Dir(preview)))
	}
	return results
}

// Failed joins the errors of every failed result, or returns nil.
func Failed(results []Result) error {
	var errs []error
	for _, r := range results {
		if err := r.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
