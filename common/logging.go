// Package common holds small pieces of ambient infrastructure shared by the
// server packages: output routing for structured logs.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes logrus-formatted lines to stderr when they carry
// "level=error" and to stdout otherwise, so container log collectors can
// treat the two streams differently.
type OutputSplitter struct{}

func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the package-level logrus instance new loggers are derived from
// via WithField, pre-wired with OutputSplitter.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
