// Package topicdata reads and writes the rows of topics.
//
// Service is bound to one topic and one tenant. Rows carry the internal
// columns id_, version_, tenant_id_, insert_time_ and update_time_; writes
// to an existing row go through UpdateByIDAndVersion or
// DeleteByIDAndVersion and change nothing when another writer got there
// first. WithTransaction runs a function on a transactional service;
// nesting is refused.
//
// Two providers are included: MemoryStore for tests and single-process
// use, and GormStore, which keeps every topic in one topic_data table with
// factor values in a JSON column. GormStore filters by id_ and version_ in
// SQL; factor conditions are matched after loading.
package topicdata
