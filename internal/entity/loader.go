// Package entity loads the roster of tracked entities for a batch run.
package entity

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/batch"
)

// LoadRoster reads the roster file: one entity per line, "id" or "id,note",
// blank lines and '#' comments skipped. The entity id doubles as its storage
// namespace. The roster is read once at run start and is immutable for the
// run; an empty roster is a configuration error.
func LoadRoster(path string, logger *zap.Logger) ([]batch.Entity, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &batch.ConfigError{Reason: fmt.Sprintf("open roster %s: %v", path, err)}
	}
	defer f.Close()

	var entities []batch.Entity
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, note, _ := strings.Cut(line, ",")
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			logger.Warn("duplicate roster entry skipped", zap.String("entity_id", id))
			continue
		}
		seen[id] = struct{}{}
		entities = append(entities, batch.Entity{
			ID:        id,
			Namespace: id,
			Note:      strings.TrimSpace(note),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	if len(entities) == 0 {
		return nil, &batch.ConfigError{Reason: fmt.Sprintf("roster %s is empty", path)}
	}
	logger.Info("roster loaded", zap.String("path", path), zap.Int("entities", len(entities)))
	return entities, nil
}
