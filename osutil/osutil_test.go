//go:build !windows

package osutil

import (
	"os"
	"strings"
	"syscall"
	"testing"
)

func TestSignals(t *testing.T) {
	if !IsSignalHUP(syscall.SIGHUP) || IsSignalHUP(syscall.SIGTERM) {
		t.Error("HUP mismatch")
	}
	if !IsSignalUSR1(syscall.SIGUSR1) || IsSignalUSR1(syscall.SIGUSR2) {
		t.Error("USR1 mismatch")
	}
	if !IsSignalUSR2(syscall.SIGUSR2) || IsSignalUSR2(syscall.SIGUSR1) {
		t.Error("USR2 mismatch")
	}
	if !IsSignalTERM(syscall.SIGTERM) || !IsSignalINT(os.Interrupt) {
		t.Error("TERM/INT mismatch")
	}
}

func TestConstrainNoop(t *testing.T) {
	if err := Constrain("", "", ""); err != nil {
		t.Error("Empty constrain should be a noop", err)
	}
	rep := ConstraintReport()
	if !strings.HasPrefix(rep, "uid=") {
		t.Error("Unexpected report", rep)
	}
}

func TestConstrainBadUser(t *testing.T) {
	err := Constrain("no-such-user-zeronsd", "", "")
	if err == nil {
		t.Fatal("Expected an error for an unknown user")
	}
	if !strings.Contains(err.Error(), "no-such-user-zeronsd") {
		t.Error("Error should name the user", err)
	}
}
