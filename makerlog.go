package gatekeeper

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SuggestLogger writes a transcript of one suggest session's LLM traffic
type SuggestLogger struct {
	file      *os.File
	mu        sync.Mutex
	sessionID string
}

// NewSuggestLogger creates a transcript file for a suggest session
func NewSuggestLogger(sessionID, topic string) (*SuggestLogger, error) {
	if err := os.MkdirAll("log", 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := filepath.Join("log", fmt.Sprintf("suggest-%s.log", sessionID))
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &SuggestLogger{
		file:      file,
		sessionID: sessionID,
	}

	logger.Logf("=== Challenge Suggest Log ===\n")
	logger.Logf("Session: %s\n", sessionID)
	logger.Logf("Topic: %s\n", topic)
	logger.Logf("Started: %s\n\n", time.Now().Format(time.RFC3339))

	return logger, nil
}

// Logf writes a formatted transcript entry with timestamp
func (sl *SuggestLogger) Logf(format string, args ...interface{}) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(sl.file, "[%s] %s", timestamp, fmt.Sprintf(format, args...))
	sl.file.Sync()
}

// LogRequest records an outgoing prompt
func (sl *SuggestLogger) LogRequest(module, prompt string) {
	sl.Logf("=== REQUEST (%s) ===\n%s\n\n", module, prompt)
}

// LogResponse records a model response
func (sl *SuggestLogger) LogResponse(module, response string) {
	sl.Logf("=== RESPONSE (%s) ===\n%s\n\n", module, response)
}

// LogVerdict records the checker's verdict on a draft
func (sl *SuggestLogger) LogVerdict(question string, accept bool, reason string) {
	verdict := "REJECT"
	if accept {
		verdict = "ACCEPT"
	}
	sl.Logf("Draft %q: %s - %s\n", question, verdict, reason)
}

// Close finishes and closes the transcript
func (sl *SuggestLogger) Close() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.file != nil {
		timestamp := time.Now().Format("15:04:05.000")
		fmt.Fprintf(sl.file, "[%s] Completed: %s\n", timestamp, time.Now().Format(time.RFC3339))
		return sl.file.Close()
	}
	return nil
}
