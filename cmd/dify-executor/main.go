package main

import "github.com/nakt/dify-workflow-api-executor/internal/cli"

func main() {
	cli.Execute()
}
