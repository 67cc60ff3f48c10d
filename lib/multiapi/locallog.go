package multiapi

import "github.com/op/go-logging"

var log *logging.Logger

func SetLog(logger *logging.Logger) {
	log = logger
}

func debugf(format string, args ...interface{}) {
	if log != nil {
		log.Debugf(format, args...)
	}
}

func errorf(format string, args ...interface{}) {
	if log != nil {
		log.Errorf(format, args...)
	}
}
