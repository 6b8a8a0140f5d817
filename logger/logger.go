package logger

import (
	"os"

	"go.uber.org/zap"
)

var Log *zap.Logger = getLogger()

// Fatal is a variable so tests can observe startup failures without exiting.
var Fatal = func(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

func getLogger() *zap.Logger {
	var (
		log *zap.Logger
		err error
	)

	if os.Getenv("ENV") == "prod" {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}

	if err != nil {
		panic("unable to build zap logger: " + err.Error())
	}
	return log
}

func Get() *zap.Logger {
	return Log
}

func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

// Sync flushes buffered entries. Call before the process exits.
func Sync() {
	_ = Log.Sync()
}
