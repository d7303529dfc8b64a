// SPDX-FileCopyrightText: © 2026 cyphalgo contributors
// SPDX-License-Identifier: MIT

package cyphalcan

import "github.com/charmbracelet/log"

// logDebugf writes a debug-level line to logger, if one is set. Logging
// never changes a return value: protocol anomalies that are not errors
// per the package's error taxonomy stay that way regardless of whether a
// logger is attached.
func logDebugf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Debugf(format, args...)
	}
}

func logWarnf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Warnf(format, args...)
	}
}
