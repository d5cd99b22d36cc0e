// Command custom-message is the user pool custom message Lambda for the
// sign-up verification email.
package main

import (
	"auth-gateway/internal/auth/message"
	"auth-gateway/internal/config"
	"auth-gateway/internal/logger"

	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	logger.Init()

	cfg, err := config.LoadTrigger()
	if err != nil {
		logger.Fatal("invalid configuration", map[string]any{
			"error": err.Error(),
		})
	}

	customizer := message.New(message.Config{
		AppName:       cfg.AppName,
		DeploymentURL: cfg.DeploymentURL,
	})
	lambda.Start(customizer.Handle)
}
