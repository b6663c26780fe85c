package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/civic-report-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("civic-service exited")
		os.Exit(1)
	}
}
