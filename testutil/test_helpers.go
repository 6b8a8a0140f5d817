package testutil

import (
	"os"

	"github.com/nsa-yoda/ReplyXL/logger"
	"go.uber.org/zap"
)

// WithEnv sets key for the duration of fn and replaces logger.Fatal with a
// recorder, so startup paths that would exit the process can be asserted on.
func WithEnv(key, value string, fn func(logger *MockLogger)) {
	original, had := os.LookupEnv(key)
	os.Setenv(key, value)
	defer func() {
		if had {
			os.Setenv(key, original)
		} else {
			os.Unsetenv(key)
		}
	}()

	mockLogger := &MockLogger{}
	originalFatal := logger.Fatal
	logger.Fatal = mockLogger.Fatal
	defer func() {
		logger.Fatal = originalFatal
	}()

	fn(mockLogger)
}

// MockLogger captures Fatal calls instead of exiting.
type MockLogger struct {
	IsFatalCalled bool
	FatalMsg      string
	FatalFields   []zap.Field
}

func (m *MockLogger) Fatal(msg string, fields ...zap.Field) {
	m.IsFatalCalled = true
	m.FatalMsg = msg
	m.FatalFields = fields
}
