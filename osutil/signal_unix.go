//go:build !windows

package osutil

import (
	"os"
	"os/signal"
	"syscall"
)

// SignalNotify relays the signals zeronsd acts on to c. SIGHUP forces a refresh, USR1
// reports stats and USR2 toggles query logging.
func SignalNotify(c chan os.Signal) {
	signal.Notify(c, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
}

func IsSignalUSR1(s os.Signal) bool { return s == syscall.SIGUSR1 }
func IsSignalUSR2(s os.Signal) bool { return s == syscall.SIGUSR2 }
func IsSignalTERM(s os.Signal) bool { return s == syscall.SIGTERM }
func IsSignalINT(s os.Signal) bool  { return s == os.Interrupt }
func IsSignalHUP(s os.Signal) bool  { return s == syscall.SIGHUP }
