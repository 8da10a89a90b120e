package processing

import (
	customlog "github.com/dmweis/hamilton/pkg/log"
)

// LoggingResultHandler logs failed and slow results.
type LoggingResultHandler struct {
	logger customlog.Logger
}

// NewLoggingResultHandler creates a new logging result handler
func NewLoggingResultHandler(logger customlog.Logger) *LoggingResultHandler {
	return &LoggingResultHandler{logger: logger}
}

// HandleResult handles a processed message result
func (h *LoggingResultHandler) HandleResult(result *ProcessResult) {
	if result.Error != nil {
		h.logger.Errorf("Error processing message for topic '%s': %v", result.Topic, result.Error)
		return
	}
	h.logger.Debugf("Processed message for topic '%s' in %s", result.Topic, result.Duration)
}

// CreateHandlerFunc creates a ResultHandler function for the ProcessingPool
func (h *LoggingResultHandler) CreateHandlerFunc() ResultHandler {
	return func(result *ProcessResult) {
		if result == nil {
			h.logger.Errorf("Received nil ProcessResult")
			return
		}
		h.HandleResult(result)
	}
}
