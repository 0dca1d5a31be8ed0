// Package all wires all built-in storage backends into the storage factory.
//
// Importing it (even as a blank import) runs the init functions of each
// backend, making the "mysql", "postgres", "mssql" and "sqlite" kinds
// available to storage.New.
package all

import (
	_ "dbmigrate/internal/storage/mssql"
	_ "dbmigrate/internal/storage/mysql"
	_ "dbmigrate/internal/storage/postgres"
	_ "dbmigrate/internal/storage/sqlite"
)
