package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
)

var checkPragmas = map[string]string{
	"quick": "PRAGMA quick_check",
	"full":  "PRAGMA integrity_check",
}

// VerifyIntegrity runs quick_check ("quick") or integrity_check ("full")
// against a read-only connection. Healthy files yield (nil, nil); otherwise
// the diagnostic rows are returned.
func VerifyIntegrity(path, mode string) ([]string, error) {
	pragma, ok := checkPragmas[mode]
	if !ok {
		return nil, fmt.Errorf("sqlite: unknown verify mode %q", mode)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(2000)", path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open for verify: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.Query(pragma)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
	}
	defer func() { _ = rows.Close() }()

	var diag []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s row: %w", pragma, err)
		}
		diag = append(diag, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
	}

	switch {
	case len(diag) == 1 && strings.EqualFold(diag[0], "ok"):
		return nil, nil
	case len(diag) == 0:
		return []string{pragma + " returned no rows"}, nil
	}
	return diag, nil
}
