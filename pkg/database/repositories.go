// Copyright 2025 DeFlow
//
// Repositories - Convenience wrapper for all database repositories
// Provides a single point of access to all repository types

package database

// Repositories holds all repository instances.
type Repositories struct {
	Treasury *TreasuryRepository
	Pool     *PoolRepository
}

// NewRepositories creates all repositories with the given client.
func NewRepositories(client *Client) *Repositories {
	return &Repositories{
		Treasury: NewTreasuryRepository(client),
		Pool:     NewPoolRepository(client),
	}
}
