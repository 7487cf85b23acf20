// Package core provides the business logic for trading journal snapshot imports.
//
// This package is the heart of the importer, containing all domain logic
// independent of any transport layer. It is used by the web handlers, the
// CLI, and tests without modification.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Table Definitions: Registered via the registry, each entity type has
//     field specs, a natural key, reference resolution and an insert.
//   - Importer: Runs the tables of one snapshot in dependency order.
//   - Service: The entry point for frontends (import, run history, limits).
//
// # Table Registry
//
// Tables are registered at init time using [Register]. Each [TableDefinition]
// contains everything needed to import one entity type:
//
//	core.Register(TableDefinition{
//	    Info: TableInfo{Key: core.EntityTradeTag, Label: "Trade Tags", Stage: core.StageAccounts},
//	    FieldSpecs: []FieldSpec{
//	        {Name: "id", Type: FieldText},
//	        {Name: "name", Type: FieldText, Required: true},
//	    },
//	    Decode: decodeTag,
//	    Key:    tagKey,
//	    Insert: insertTag,
//	})
//
// # Import Flow
//
// For each table, in stage order, [Importer.Run]:
//
//  1. Takes the table from the decode-ahead prefetcher
//  2. Opens a transaction for the table
//  3. Per row: decodes, resolves references ([Resolver]), checks the
//     natural key ([Deduper]), inserts under a savepoint and records the
//     new id ([IDMap])
//  4. Commits, then queues the rows' attachments for upload
//
// # Error Handling
//
// Row failures are counted in the result and never stop the run. Technical
// errors are mapped to user-friendly messages using [MapError]:
//
//   - ARC001-ARC005: Archive errors (malformed, manifest, version, size)
//   - OWN001: Unknown owner
//   - IMP001-IMP004: Run errors (concurrency, timeout, cancellation)
//   - ROW001-ROW007: Row errors (numbers, dates, required fields, parents)
//   - DB001-DB005: Database errors (duplicates, constraints, connections)
//
// # Run History
//
// Every run is recorded in import_runs. Old runs are purged on a cron
// schedule by [Service.StartRetentionScheduler].
package core
