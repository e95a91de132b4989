package gatekeeper

import "log"

// Global verbose flag
var verboseMode bool

// SetVerbose sets the global verbose mode
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// VerboseLog logs only when verbose mode is enabled
func VerboseLog(format string, v ...interface{}) {
	if verboseMode {
		log.Printf(format, v...)
	}
}

// logInfo records a routine operational event
func logInfo(format string, v ...interface{}) {
	log.Printf("INFO "+format, v...)
}

// logWarn records a recovered failure, typically a permission denial
func logWarn(format string, v ...interface{}) {
	log.Printf("WARN "+format, v...)
}
