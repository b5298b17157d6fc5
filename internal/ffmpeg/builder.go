package ffmpeg

import "strings"

// DefaultBinary and DefaultProbeBinary are looked up on PATH unless configured.
const (
	DefaultBinary      = "ffmpeg"
	DefaultProbeBinary = "ffprobe"
)

// Invocation is a fully assembled engine command line.
type Invocation struct {
	Binary string
	Args   []string
}

// BuildCommand assembles
//
//	<binary> -y -i <input> <directive...> <output> [-vf fps=1 -update 1 <preview>]
//
// The preview output rewrites one JPEG frame per second when preview is set.
func BuildCommand(binary string, d Directive, input, output, preview string) Invocation {
	if binary == "" {
		binary = DefaultBinary
	}
	args := make([]string, 0, d.Len()+10)
	args = append(args, "-y", "-i", input)
	args = append(args, d.args...)
	args = append(args, output)
	if preview != "" {
		args = append(args, PreviewArgs(preview)...)
	}
	return Invocation{Binary: binary, Args: args}
}

// PreviewArgs returns the second-output arguments that keep preview updated.
func PreviewArgs(preview string) []string {
	return []string{"-vf", "fps=1", "-update", "1", preview}
}

// Argv returns binary followed by the arguments.
func (inv Invocation) Argv() []string {
	return append([]string{inv.Binary}, inv.Args...)
}

// String renders the command with shell quoting for display.
func (inv Invocation) String() string {
	return ShellJoin(inv.Argv())
}

// ShellJoin quotes each argument that needs it for a POSIX shell.
func ShellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		if a != "" && strings.IndexFunc(a, needsQuote) < 0 {
			quoted[i] = a
			continue
		}
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=,+@%", r)
}
