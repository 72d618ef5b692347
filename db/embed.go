// Package db provides the embedded database migrations.
package db

import "embed"

// Migrations holds the golang-migrate compatible up/down scripts.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that holds the scripts.
const MigrationsDir = "migrations"
