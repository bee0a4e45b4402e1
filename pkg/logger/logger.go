package logger

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TimestampFormat is the timestamp layout of every log line.
const TimestampFormat = "2006-01-02 15:04:05"

// Options configures New.
type Options struct {
	Level string
	// JSON selects the JSON formatter, used in production.
	JSON   bool
	Output io.Writer
}

// New builds the service logger.
func New(opts Options) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "parse log level %q", opts.Level)
	}

	l := logrus.New()
	l.SetLevel(level)
	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stdout)
	}
	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{
			DisableHTMLEscape: true,
			TimestampFormat:   TimestampFormat,
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: TimestampFormat,
		})
	}
	return l, nil
}

// Setup configures the standard logger the same way New does and returns
// an entry tagged with service.
func Setup(service string, opts Options) (*logrus.Entry, error) {
	l, err := New(opts)
	if err != nil {
		return nil, err
	}
	std := logrus.StandardLogger()
	std.SetLevel(l.GetLevel())
	std.SetOutput(l.Out)
	std.SetFormatter(l.Formatter)
	return logrus.NewEntry(std).WithField("service", service), nil
}
