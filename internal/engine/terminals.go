package engine

import (
	"os"
	"strconv"
	"strings"

	"CopyFabric/internal/domain/service"
)

const (
	// IndexPlaceholder marks where the grid index goes in a terminal path template.
	IndexPlaceholder = "{i}"
	// FirstFollowerIndex is the lowest grid index used for followers; lower
	// indices belong to master broadcasters.
	FirstFollowerIndex = 5
	DefaultMockWorkers = 4
)

// PoolConfig decides which terminals the pool binds workers to.
type PoolConfig struct {
	GridTemplate string `yaml:"grid_template"`
	GridMax      int    `yaml:"grid_max" default:"20"`
	Override     string `yaml:"terminal_path"`
	MockWorkers  int    `yaml:"mock_workers" default:"4"`
}

// ResolveTerminals returns one path per worker: the grid installations that
// exist on disk, else the single override, else MOCK workers.
func ResolveTerminals(cfg PoolConfig) []string {
	return resolveTerminals(cfg, fileExists)
}

func resolveTerminals(cfg PoolConfig, exists func(string) bool) []string {
	if cfg.GridTemplate != "" && strings.Contains(cfg.GridTemplate, IndexPlaceholder) {
		var grid []string
		for i := FirstFollowerIndex; i <= cfg.GridMax; i++ {
			p := strings.ReplaceAll(cfg.GridTemplate, IndexPlaceholder, strconv.Itoa(i))
			if exists(p) {
				grid = append(grid, p)
			}
		}
		if len(grid) > 0 {
			return grid
		}
	}
	if cfg.Override != "" {
		return []string{cfg.Override}
	}
	n := cfg.MockWorkers
	if n <= 0 {
		n = DefaultMockWorkers
	}
	out := make([]string, n)
	for i := range out {
		out[i] = service.MockTerminal
	}
	return out
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
