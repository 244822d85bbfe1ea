package bridge

import (
	"fmt"
	"log"
)

// providerLogger adapts the standard logger to the mcp-go transport
// logging interface, tagging lines with the provider and masking secrets.
type providerLogger struct {
	name   string
	logger *log.Logger
	redact redactor
}

func (l providerLogger) Infof(format string, v ...any) {
	l.logger.Printf("provider %s: %s", l.name, l.redact.String(fmt.Sprintf(format, v...)))
}

func (l providerLogger) Errorf(format string, v ...any) {
	l.logger.Printf("WARNING: provider %s: %s", l.name, l.redact.String(fmt.Sprintf(format, v...)))
}
