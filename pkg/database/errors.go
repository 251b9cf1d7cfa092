// Copyright 2025 DeFlow
//
// Package database provides sentinel errors for repository operations.
// Explicit errors instead of nil, nil returns.

package database

import "errors"

// Sentinel errors for database operations.
var (
	// ErrNotFound is returned when a requested entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrDistributionNotFound is returned when a treasury distribution
	// record is not found.
	ErrDistributionNotFound = errors.New("distribution not found")

	// ErrReserveEventNotFound is returned when a pool reserve event is
	// not found.
	ErrReserveEventNotFound = errors.New("reserve event not found")
)
