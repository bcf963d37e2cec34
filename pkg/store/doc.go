// Package store implements the durable event store on PostgreSQL.
//
// The scheduled_events table is range-partitioned by partition_key
// (year*1000 + day-of-year of scheduled_at), ten day-keys per partition.
// Partitions are pre-created by an application-side maintenance loop rather
// than DB triggers, so the schema stays plain DDL.
//
// Claiming is the only cross-process coordination in the system: ClaimDue
// uses SELECT ... FOR UPDATE SKIP LOCKED inside a single transaction so N
// workers polling concurrently claim disjoint batches without blocking each
// other. There is no leader election and no external lock service.
//
// Outcome transitions (Complete, FailRetriable, FailTerminal) are predicated
// on the caller still holding the lease (locked_by = worker), closing the
// lost-update window between lease expiry and a late completion.
package store
