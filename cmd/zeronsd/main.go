package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/zerotier/zeronsd/log"
	"github.com/zerotier/zeronsd/pregen"
)

func reportError(severity string, err error, messages ...string) {
	msg := severity
	if len(messages) > 0 {
		msg += ": " + strings.Join(messages, " ")
	}
	if err != nil {
		msg += ": " + err.Error()
	}
	fmt.Fprintln(log.Out(), msg)
}

func fatal(err error, messages ...string) {
	reportError("Fatal", err, messages...)
	os.Exit(1)
}

func warning(err error, messages ...string) {
	reportError("Warning", err, messages...)
}

//////////////////////////////////////////////////////////////////////

func main() {
	zn := newZeronsd(nil)
	switch zn.parseOptions(os.Args) {
	case parseStop:
		return
	case parseFailed:
		os.Exit(1)
	case parseContinue:
	}

	// Transfer logging options to the log package

	if zn.cfg.logMajorFlag {
		log.SetLevel(log.MajorLevel)
	}
	if zn.cfg.logMinorFlag {
		log.SetLevel(log.MinorLevel)
	}
	if zn.cfg.logDebugFlag {
		log.SetLevel(log.DebugLevel)
	}

	fmt.Fprintln(log.Out(),
		programName, pregen.Version, "Starting with Log Level:", log.Level())

	// Validate everything that is likely a typo or usage error
	err := zn.ValidateCommandLineOptions()
	if err != nil {
		fatal(err)
	}

	zn.connect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	err = zn.discoverListens(ctx)
	cancel()
	if err != nil {
		fatal(err)
	}

	err = zn.generateAuthorities()
	if err != nil {
		fatal(err)
	}

	err = zn.startServers() // Only returns nil if at least one listen succeeded
	if err != nil {
		fatal(err)
	}

	err = zn.Constrain() // setuid/setgid/chroot
	if err != nil {
		fatal(err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), time.Minute)
	err = zn.updateCentral(ctx)
	cancel()
	if err != nil {
		warning(err)
	}

	zn.startRefreshers()

	err = zn.startMetrics()
	if err != nil {
		fatal(err, "--metrics")
	}

	zn.Run()

	zn.statsReport(false) // Final stats - depending on log level

	fmt.Fprintln(log.Out(), programName, pregen.Version, "Exiting after",
		time.Since(zn.startTime).Round(time.Second))
}
