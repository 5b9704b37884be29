// Package storage is the optional journal of operator actions and terminal
// delivery results.
//
// It never holds undelivered messages: nothing here is replayed on restart.
package storage
