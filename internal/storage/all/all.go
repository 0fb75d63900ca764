// Package all registers every storage backend and the SQL Server driver.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/storage/mssql"
	_ "github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/storage/postgres"
	_ "github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/storage/sqlite"
)
