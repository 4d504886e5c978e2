package model

import (
	"errors"
	"fmt"
)

// ErrDuplicateKey is matched by every DuplicateKeyError.
var ErrDuplicateKey = errors.New("duplicate key")

// ConfigError reports an invalid configuration entry.
type ConfigError struct {
	Entry string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Entry, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// StoreError reports a failure of the underlying persistence layer.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DuplicateKeyError is returned when inserting an item whose identity is
// already stored.
type DuplicateKeyError struct {
	Source     string
	ExternalID string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("item %s/%s already stored", e.Source, e.ExternalID)
}

// Is reports whether target is ErrDuplicateKey.
func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}
