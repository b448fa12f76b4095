package devicemanager_test

import "github.com/go-logr/logr"

func testLogger() logr.Logger {
	return logr.Discard()
}
