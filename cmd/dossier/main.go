package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/dossier/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("dossier failed")
		os.Exit(1)
	}
}
