// Package dialect defines the driver contract used by the SQL backed store.
//
// A Driver executes statements built by the store and hands out
// transactions. Every DAO operation runs inside exactly one Tx:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// The dialect name selects the statement builder and the DDL driver:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// Opening a driver:
//
//	drv, err := sql.Open(dialect.SQLite, "file:relgraph.db?_pragma=foreign_keys(1)")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
package dialect
