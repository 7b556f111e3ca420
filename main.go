// main.go

package main

import (
	"github.com/bedrock-install/bedrock/cmd"
	"github.com/bedrock-install/bedrock/pkg/logger"
	"github.com/bedrock-install/bedrock/pkg/telemetry"
)

func main() {
	logger.InitializeWithFallback()
	defer func() { _ = logger.Sync() }()

	if err := telemetry.Init("bedrock"); err != nil {
		logger.L().Warn("Telemetry disabled: " + err.Error())
	}

	cmd.Execute()
}
