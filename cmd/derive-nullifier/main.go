// Withdrawer helper: derives the public nullifier hash and commitment from
// a note's secret values, using the same MiMC derivation as the circuit.
package main

import (
	"flag"
	"fmt"
	"os"

	"shadowpool/internal/utils"
	"shadowpool/internal/zk"
)

func main() {
	seedHex := flag.String("seed", "", "nullifier seed (0x-prefixed 32-byte hex)")
	secretHex := flag.String("secret", "", "note secret (0x-prefixed 32-byte hex, optional)")
	flag.Parse()

	if *seedHex == "" {
		fmt.Println("usage: derive-nullifier -seed 0x... [-secret 0x...]")
		os.Exit(1)
	}

	seed, err := utils.ParseHash(*seedHex)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Nullifier hash: %s\n", zk.DeriveNullifierHash(seed).Hex())

	if *secretHex != "" {
		secret, err := utils.ParseHash(*secretHex)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		hasher := zk.NewMiMCHasher()
		fmt.Printf("Commitment:     %s\n", hasher.HashPair(seed, secret).Hex())
	}
}
