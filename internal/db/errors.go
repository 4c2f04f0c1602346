package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
	ErrKeyExists   = errors.New("db: key already exists")
)

// Op constants map to Redis/Valkey command names for error context.
const (
	OpGet    = "GET"
	OpSet    = "SET"
	OpSetNX  = "SET NX"
	OpDel    = "DEL"
	OpExists = "EXISTS"
	OpScan   = "SCAN"
	OpHSet   = "HSET"
	OpHGet   = "HGETALL"
)

// Error wraps a failed command with its operation name.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
