package timing

import "embed"

//go:embed migrations/sqlite/*.sql
var migrationsFS embed.FS

//go:embed migrations/postgres/*.sql
var postgresMigrationsFS embed.FS
