package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens the GORM connection. SQL echo is off except in development.
func Open(dsn string, dev bool) (*gorm.DB, error) {
	lvl := logger.Warn
	if dev {
		lvl = logger.Info
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(lvl),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm open: %w", err)
	}
	return db, nil
}

// findDir resolves a repo-relative directory from cwd or its parent
// (handles running from bin/).
func findDir(parts ...string) string {
	cwd, _ := os.Getwd()
	candidates := []string{
		filepath.Join(append([]string{cwd}, parts...)...),
		filepath.Join(append([]string{cwd, ".."}, parts...)...),
	}
	for _, d := range candidates {
		if _, err := os.Stat(d); err == nil {
			abs, _ := filepath.Abs(d)
			return abs
		}
	}
	return ""
}
