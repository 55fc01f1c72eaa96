// Package util provides internal helpers shared by the database engines:
// seeded string hashing for shard distribution and the deadline queue used
// by the TTL garbage collector.
package util
