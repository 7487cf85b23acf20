package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[EntityType]TableDefinition)
	registryMu sync.RWMutex
)

// Register adds a table definition to the registry.
// Panics if a table with the same key is already registered, or if the
// definition lacks the functions every import stage needs.
func Register(def TableDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("table already registered: %s", def.Info.Key))
	}
	if def.Decode == nil || def.Key == nil || def.Insert == nil {
		panic(fmt.Sprintf("table %s: Decode, Key and Insert are required", def.Info.Key))
	}
	if def.Info.Stage < StageAccounts || def.Info.Stage > StageTemplates {
		panic(fmt.Sprintf("table %s: invalid stage %d", def.Info.Key, def.Info.Stage))
	}
	if len(def.Assets) > 0 && def.Info.AssetKind == "" {
		panic(fmt.Sprintf("table %s: asset slots need an AssetKind", def.Info.Key))
	}

	registry[def.Info.Key] = def
}

// Get returns a table definition by key.
// Returns false if not found.
func Get(key EntityType) (TableDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered table definitions in import order.
func All() []TableDefinition {
	return Ordered()
}

// Ordered returns the registered tables sorted by stage, then by their order
// within the stage. This is the order the importer commits them in.
func Ordered() []TableDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]TableDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].Info, result[j].Info
		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.Key < b.Key
	})

	return result
}

// ByStage returns the table definitions of one stage in order.
func ByStage(stage int) []TableDefinition {
	var result []TableDefinition
	for _, def := range Ordered() {
		if def.Info.Stage == stage {
			result = append(result, def)
		}
	}
	return result
}

// TableCount returns the number of registered tables.
func TableCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// ValidateOrder checks that every table depends only on tables of earlier
// stages. Dependencies that are not registered are ignored.
func ValidateOrder() error {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for key, def := range registry {
		for _, dep := range def.Info.DependsOn {
			parent, ok := registry[dep]
			if !ok {
				continue
			}
			if parent.Info.Stage >= def.Info.Stage {
				return fmt.Errorf("table %s (stage %d) depends on %s (stage %d)",
					key, def.Info.Stage, dep, parent.Info.Stage)
			}
		}
	}
	return nil
}

// Clear removes all registered tables.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[EntityType]TableDefinition)
}
