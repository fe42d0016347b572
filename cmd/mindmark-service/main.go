package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/mindmark/mindmark-server/mindmarkservice"
)

func main() {
	if err := mindmarkservice.Run(); err != nil {
		log.Error().Err(err).Msg("mindmark-service exited with error")
		os.Exit(1)
	}
}
