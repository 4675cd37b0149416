package main

import (
	"context"

	"github.com/ammiranda/request_tree/config"
	"github.com/ammiranda/request_tree/internal/app"
	"github.com/ammiranda/request_tree/internal/lambda"

	awslambda "github.com/aws/aws-lambda-go/lambda"
)

func main() {
	ctx := context.Background()

	cfgProvider, err := config.NewDefaultProvider()
	if err != nil {
		panic(err)
	}

	application, err := app.New(ctx, cfgProvider)
	if err != nil {
		panic(err)
	}

	// Create handler with the application router
	handler := lambda.NewHandler(application.Router)

	// Start Lambda
	awslambda.Start(handler.Handle)
}
