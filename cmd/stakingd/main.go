package main

import (
	"log"

	"github.com/tuturu-tech/nft-staking/services/stakingd"
)

func main() {
	if err := stakingd.Main(); err != nil {
		log.Fatalf("stakingd: %v", err)
	}
}
