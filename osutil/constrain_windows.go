package osutil

import (
	"errors"
)

// Constrain is not supported on Windows. Asking for it is an error rather than being
// silently ignored.
func Constrain(userName, groupName, chrootDir string) error {
	if len(userName) > 0 || len(groupName) > 0 || len(chrootDir) > 0 {
		return errors.New("constrain: --user, --group and --chroot are not supported on windows")
	}

	return nil
}

func ConstraintReport() string {
	return "unconstrained"
}
