// Package sql implements dialect.Driver on top of database/sql.
//
// Statements are built by the store (see store/sqlstore) and executed
// through Driver or a Tx obtained from it. StatsDriver decorates a Driver
// with query counters and slow query reporting:
//
//	drv, err := sql.Open("sqlite", "file:relgraph.db")
//	if err != nil {
//	    return err
//	}
//	stats := sql.NewStatsDriver(drv,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(logger),
//	)
//	fmt.Println(stats.QueryStats().Stats())
package sql
