// Package ingest implements the buffered ingestion pipeline.
//
// Accepted submissions are produced to a Kafka topic keyed by (source,
// external job id) and persisted by a consumer-group persister. The buffer
// absorbs submission bursts and survives store outages: records stay on the
// topic until the persister reaches a terminal outcome for them.
package ingest
