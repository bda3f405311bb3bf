package main

import (
	"log"

	"github.com/runledger/runledger/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
