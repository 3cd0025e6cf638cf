// Operational consistency check: verifies the pool counter invariants
// directly against Postgres, independent of the server process.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"shadowpool/internal/utils"

	_ "github.com/lib/pq"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("DATABASE_DSN"), "postgres DSN")
	flag.Parse()

	if *dsn == "" {
		fmt.Println("usage: verify-db -dsn postgres://... (or set DATABASE_DSN)")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", *dsn)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT p.id, p.denomination, p.leaf_count, p.total_deposited, p.total_withdrawn,
		       (SELECT COUNT(*) FROM commitment_records c WHERE c.pool_id = p.id),
		       (SELECT COUNT(*) FROM nullifier_records n WHERE n.pool_id = p.id)
		FROM pools p
		ORDER BY p.created_at
	`)
	if err != nil {
		fmt.Printf("Error querying pools: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()

	failures := 0
	for rows.Next() {
		var id string
		var denomination, totalDeposited, totalWithdrawn uint64
		var leafCount uint32
		var commitments, nullifiers int64
		if err := rows.Scan(&id, &denomination, &leafCount, &totalDeposited, &totalWithdrawn, &commitments, &nullifiers); err != nil {
			fmt.Printf("Error scanning row: %v\n", err)
			os.Exit(1)
		}

		ok := true
		expectedDeposited, err := utils.CheckedMul(denomination, uint64(leafCount))
		if err != nil || expectedDeposited != totalDeposited {
			fmt.Printf("FAIL pool %s: total_deposited %d != denomination %d * leaf_count %d\n", id, totalDeposited, denomination, leafCount)
			ok = false
		}
		if commitments != int64(leafCount) {
			fmt.Printf("FAIL pool %s: %d commitment rows, leaf_count %d\n", id, commitments, leafCount)
			ok = false
		}
		if nullifiers > int64(leafCount) {
			fmt.Printf("FAIL pool %s: %d nullifiers exceed %d leaves\n", id, nullifiers, leafCount)
			ok = false
		}
		if totalWithdrawn > totalDeposited {
			fmt.Printf("FAIL pool %s: total_withdrawn %d exceeds total_deposited %d\n", id, totalWithdrawn, totalDeposited)
			ok = false
		}

		if ok {
			fmt.Printf("OK   pool %s: %d leaves, %d spent\n", id, leafCount, nullifiers)
		} else {
			failures++
		}
	}
	if err := rows.Err(); err != nil {
		fmt.Printf("Error iterating pools: %v\n", err)
		os.Exit(1)
	}

	if failures > 0 {
		fmt.Printf("%d pool(s) failed verification\n", failures)
		os.Exit(1)
	}
	fmt.Println("All pools consistent")
}
