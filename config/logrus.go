package config

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logg *logrus.Logger

func GetLogger() *logrus.Logger {
	return logg
}

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetOutput(os.Stdout)
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		logg.SetLevel(logrus.DebugLevel)
	case "info":
		logg.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logg.SetLevel(logrus.WarnLevel)
	default:
		logg.SetLevel(logrus.ErrorLevel)
	}
}

func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	if data != nil {
		logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": funcName,
			"context":  context,
			"data":     data,
		}).Error(err.Error())
	} else {
		logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": funcName,
			"context":  context,
		}).Error(err.Error())
	}
}
