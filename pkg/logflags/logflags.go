// Package logflags implements the debug logging switches shared by
// every component of pstack. User-facing diagnostics always go to
// stderr directly; the loggers configured here only carry developer
// output enabled with --log.
package logflags

import (
	"errors"
	"io/ioutil"
	"log"
	"os"
	"strings"

	isatty "github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var gdbWire = false
var driver = false

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Formatter = &logrus.TextFormatter{
		ForceColors: isatty.IsTerminal(os.Stderr.Fd()),
	}
	logger.Logger.Level = logrus.DebugLevel
	if !flag {
		logger.Logger.Level = logrus.PanicLevel
	}
	return logger
}

// GdbWire returns true if every command sent to gdb and every reply
// framed from its output should be logged.
func GdbWire() bool {
	return gdbWire
}

// GdbWireLogger returns a configured logger for gdb console traffic.
func GdbWireLogger() *logrus.Entry {
	return makeLogger(gdbWire, logrus.Fields{"layer": "gdbwire"})
}

// Driver returns true if the protocol driver should log its state
// transitions.
func Driver() bool {
	return driver
}

// DriverLogger returns a logger for the protocol driver.
func DriverLogger() *logrus.Entry {
	return makeLogger(driver, logrus.Fields{"layer": "driver"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets logging flags based on the contents of logstr.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "driver"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "gdbwire":
			gdbWire = true
		case "driver":
			driver = true
		}
	}
	return nil
}
