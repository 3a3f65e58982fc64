package main

import (
	"log"
	"os"

	"deal_watcher/cli"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := cli.Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
