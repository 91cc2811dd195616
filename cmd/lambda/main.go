package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"lambdaguard/internal/config"
	"lambdaguard/internal/handlers"
	"lambdaguard/internal/logging"
	"lambdaguard/pkg/lambda"
)

// store lives as long as the execution environment
var store = handlers.NewProfileStore()

func build(cfg *config.Config) (*lambda.API, error) {
	logger := logging.New(cfg.LogLevel)

	var loader config.Source
	if cfg.ConfigFile != "" {
		fl := config.NewFileLoader(cfg.ConfigFile, logger)
		if err := fl.Load(); err != nil {
			return nil, err
		}
		if cfg.WatchConfig {
			fl.Watch()
		}
		loader = fl
	}

	logger.WithFields(logrus.Fields{
		"environment":     cfg.Environment,
		"deployment_mode": config.GetDeploymentMode(),
	}).Info("Building profile API")

	return handlers.NewProfileAPI(store, lambda.OptionsFromConfig(cfg, logger, loader)...)
}

func handler(ctx context.Context, event map[string]any) (events.APIGatewayProxyResponse, error) {
	return lambda.GetRuntime().Invoke(ctx, event, build)
}

func main() {
	awslambda.Start(handler)
}
