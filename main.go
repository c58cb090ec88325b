package main

import (
	"os"

	_ "github.com/ekaya-inc/ekaya-catalog/pkg/adapters/datasource/jsonfile"
	_ "github.com/ekaya-inc/ekaya-catalog/pkg/adapters/datasource/mongo"
	_ "github.com/ekaya-inc/ekaya-catalog/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-catalog/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-catalog/pkg/commands"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := commands.Execute(Version); err != nil {
		os.Exit(1)
	}
}
