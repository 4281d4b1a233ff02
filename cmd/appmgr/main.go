package main

import "github.com/GriffinCanCode/AgentOS/appmgr/internal/cli"

func main() {
	cli.Execute()
}
