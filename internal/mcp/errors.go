package mcp

import (
	"fmt"
	"strings"

	"github.com/glyphworks/canvasbridge/internal/bridge"
	"github.com/glyphworks/canvasbridge/internal/logger"
)

// sensitivePatterns contains substrings that indicate sensitive error details
var sensitivePatterns = []string{
	"API_KEY",
	"api_key",
	"token",
	"password",
	"secret",
	"credential",
}

// SanitizeError returns an agent-safe error message. Bridge errors are
// already classified and safe; plugin failure messages pass through
// verbatim. Everything else is logged in full and summarized.
func SanitizeError(err error, operation string) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	for _, pattern := range sensitivePatterns {
		if strings.Contains(strings.ToLower(errStr), strings.ToLower(pattern)) {
			logger.Error("%s failed (sensitive): %v", operation, err)
			return fmt.Errorf("%s failed: internal configuration error", operation)
		}
	}

	switch bridge.KindOf(err) {
	case bridge.KindNotConnected:
		return fmt.Errorf("%s failed: no channel connected; call join_channel first", operation)
	case bridge.KindEncodingError:
		return fmt.Errorf("%s failed: parameters could not be encoded", operation)
	case bridge.KindTimeout:
		return fmt.Errorf("%s failed: the design tool did not respond in time", operation)
	case bridge.KindConnectionClosed:
		return fmt.Errorf("%s failed: the channel closed mid-command", operation)
	case bridge.KindTransportError:
		logger.Error("%s transport failure: %v", operation, err)
		return fmt.Errorf("%s failed: connection to the design tool is unstable", operation)
	case bridge.KindRemoteError:
		// The plugin's own message is the user-facing diagnosis.
		return err
	}

	logger.Error("%s failed: %v", operation, err)
	if len(errStr) < 80 {
		return fmt.Errorf("%s failed: %s", operation, errStr)
	}
	return fmt.Errorf("%s failed: an unexpected error occurred", operation)
}
