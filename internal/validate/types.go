// SPDX-License-Identifier: MIT
package validate

// LogLevels lists the accepted logLevel values.
var LogLevels = []string{"trace", "debug", "info", "warn", "error"}
