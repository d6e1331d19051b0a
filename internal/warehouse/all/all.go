// Package all registers every warehouse backend with the factory.
// Blank-import it from the binary entry point; config selects which backend
// actually runs.
package all

import (
	_ "leadsync/internal/warehouse/mssql"
	_ "leadsync/internal/warehouse/postgres"
	_ "leadsync/internal/warehouse/snowflake"
	_ "leadsync/internal/warehouse/sqlite"
)
