package internal

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the activity logger. Entries go to the configured log file
// and, unless the console UI owns the terminal, to stdout.
// The returned func closes the log file.
func NewLogger(cfg Config) (*logrus.Logger, func(), error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var outputs []io.Writer
	if !cfg.UI {
		outputs = append(outputs, os.Stdout)
	}
	closeFn := func() {}
	if cfg.LogFile != "" {
		logfile, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			logger.WithError(err).Warn("Error opening log file")
		} else {
			outputs = append(outputs, logfile)
			closeFn = func() { logfile.Close() }
		}
	}
	if len(outputs) == 0 {
		logger.SetOutput(io.Discard)
	} else {
		logger.SetOutput(io.MultiWriter(outputs...))
	}
	return logger, closeFn, nil
}
