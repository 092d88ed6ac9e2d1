package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/skopiLandToken/skopi-sub000/internal/logging"
)

// RunClickHouseMigrations applies every .sql file in migrationsPath in name
// order. Statements are expected to be idempotent (IF NOT EXISTS).
func RunClickHouseMigrations(ctx context.Context, db *ClickHouseDB, migrationsPath string) error {
	logger := logging.FromContext(ctx).WithField("component", "clickhouse_migrate")

	// Read migration files
	files, err := os.ReadDir(migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	// Filter and sort SQL files
	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	if len(sqlFiles) == 0 {
		logger.Info("no clickhouse migration files found")
		return nil
	}

	// Execute each migration file
	for _, filename := range sqlFiles {
		filePath := filepath.Join(migrationsPath, filename)
		content, err := os.ReadFile(filePath) // #nosec G304 - filePath is constructed from trusted migrationsPath
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		statements := splitSQLStatements(string(content))

		for i, stmt := range statements {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}

			if err := db.Exec(ctx, stmt); err != nil {
				logger.WithError(err).WithFields(map[string]interface{}{
					"file":      filename,
					"statement": i + 1,
					"sql":       truncate(stmt, 80),
				}).Error("clickhouse statement failed")
				return fmt.Errorf("failed to execute statement in %s: %w", filename, err)
			}
		}

		logger.WithField("file", filename).Info("applied clickhouse migration")
	}

	return nil
}

// splitSQLStatements splits on lines ending in a semicolon and drops
// comment-only lines
func splitSQLStatements(content string) []string {
	var statements []string
	var currentStmt strings.Builder

	lines := strings.Split(content, "\n")

	for _, line := range lines {
		trimmedLine := strings.TrimSpace(line)

		// Skip empty lines and comment-only lines
		if trimmedLine == "" || strings.HasPrefix(trimmedLine, "--") {
			continue
		}

		// Add line to current statement
		currentStmt.WriteString(line)
		currentStmt.WriteString("\n")

		// If line ends with semicolon, it's the end of a statement
		if strings.HasSuffix(trimmedLine, ";") {
			stmt := strings.TrimSpace(currentStmt.String())
			// Remove trailing semicolon as ClickHouse doesn't need it
			stmt = strings.TrimSuffix(stmt, ";")
			if stmt != "" {
				statements = append(statements, stmt)
			}
			currentStmt.Reset()
		}
	}

	// Add any remaining statement
	if currentStmt.Len() > 0 {
		stmt := strings.TrimSpace(currentStmt.String())
		stmt = strings.TrimSuffix(stmt, ";")
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}

	return statements
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
