//go:build !windows

package osutil

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
	"syscall"
)

// Constrain drops privileges once listen sockets are open. Each of userName, groupName
// and chrootDir is optional.
//
// Names are resolved to ids before chroot as /etc/passwd is unlikely to exist inside the
// chroot. Supplementary groups are cleared and the gid set while still privileged and
// setuid comes last as it is irreversible.
func Constrain(userName, groupName, chrootDir string) error {
	uid, err := lookupID(userName, func(n string) (string, error) {
		u, err := user.Lookup(n)
		if err != nil {
			return "", err
		}
		return u.Uid, nil
	})
	if err != nil {
		return fmt.Errorf("constrain: user %s: %w", userName, err)
	}

	gid, err := lookupID(groupName, func(n string) (string, error) {
		g, err := user.LookupGroup(n)
		if err != nil {
			return "", err
		}
		return g.Gid, nil
	})
	if err != nil {
		return fmt.Errorf("constrain: group %s: %w", groupName, err)
	}

	if len(chrootDir) > 0 {
		if err := os.Chdir(chrootDir); err != nil {
			return fmt.Errorf("constrain: %w", err)
		}
		if err := syscall.Chroot(chrootDir); err != nil {
			return fmt.Errorf("constrain: chroot %s: %w", chrootDir, err)
		}
		if err := os.Chdir("/"); err != nil {
			return fmt.Errorf("constrain: %w", err)
		}
	}

	if gid >= 0 {
		if err := syscall.Setgroups([]int{}); err != nil {
			return fmt.Errorf("constrain: clear groups: %w", err)
		}
		if err := syscall.Setgid(gid); err != nil {
			return fmt.Errorf("constrain: setgid %d: %w", gid, err)
		}
	}

	if uid >= 0 {
		if err := syscall.Setuid(uid); err != nil {
			return fmt.Errorf("constrain: setuid %d: %w", uid, err)
		}
	}

	return nil
}

// lookupID returns -1 for an empty name.
func lookupID(name string, lookup func(string) (string, error)) (int, error) {
	if len(name) == 0 {
		return -1, nil
	}
	s, err := lookup(name)
	if err != nil {
		return -1, err
	}

	return strconv.Atoi(s)
}

// ConstraintReport returns the uid, gid, groups and cwd of the process, typically to
// confirm Constrain worked.
func ConstraintReport() string {
	gList, _ := os.Getgroups()
	gStr := make([]string, 0, len(gList))
	for _, g := range gList {
		gStr = append(gStr, strconv.Itoa(g))
	}
	cwd, _ := os.Getwd()

	return fmt.Sprintf("uid=%d gid=%d (%s) cwd=%s",
		os.Getuid(), os.Getgid(), strings.Join(gStr, ","), cwd)
}
