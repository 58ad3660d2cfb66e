package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/ogurasousui/staff-status-engine/internal/platform/config"
	"github.com/sirupsen/logrus"
)

// New は logging 設定から logrus.Logger を構築します。
func New(cfg config.LoggingConfig) (*logrus.Logger, error) {
	return newWithOutput(cfg, os.Stdout)
}

func newWithOutput(cfg config.LoggingConfig, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger, nil
}

// Component はコンポーネント名を付与したエントリを返します。
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("component", name)
}

// Nop は何も出力しないエントリを返します。
func Nop() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
