// Package storage persists Alfredo events.
//
// One table, one row per scheduled event. The store is opened once at
// startup and shared by command handling and the maintenance path; each call
// is its own unit of work.
package storage
