// Package tdata provides blocking data structures built from stm programs.
//
// Every operation returns an stm.Txn, so operations on several structures
// compose into a single atomic commit. Operations that cannot proceed, such
// as taking from an empty TMVar, retry and park the committing goroutine
// until another commit changes the structure.
package tdata
