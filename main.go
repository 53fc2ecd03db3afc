package main

import (
	cmd "github.com/llmeter/llmeter/cmd"
)

func main() {
	cmd.Execute()
}
