// Command relgraph inspects and maintains a relgraph store.
//
//	relgraph --config relgraph.toml migrate
//	relgraph create -f car.json
//	relgraph graph Car 6f1c...
//	relgraph delete --dry-run 6f1c...
//	relgraph list Car --order -title --limit 20
//	relgraph serve
package main

import (
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
