package main

import (
	"github.com/BioMedGraphica/conn-backend/internal/server"
	"github.com/BioMedGraphica/conn-backend/internal/util"
	"github.com/BioMedGraphica/conn-backend/pkg/logger"
	"github.com/BioMedGraphica/conn-backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.New(console.Params{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
