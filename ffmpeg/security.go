package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// SplitArgs splits an argument string the way a shell would, without
// involving a shell.
func SplitArgs(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid argument syntax: %w", err)
	}
	return args, nil
}

// ValidateGlobalArgs rejects operator-supplied arguments that could redirect
// input or output away from the task's own files.
func ValidateGlobalArgs(args []string) error {
	for _, arg := range args {
		switch arg {
		case "-i", "-y", "-n":
			return fmt.Errorf("global argument %s is managed per task", arg)
		}
		// exec.Command never runs a shell, but these have no business in ffmpeg flags.
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return fmt.Errorf("disallowed character found in argument: %s", arg)
		}
	}
	return nil
}
