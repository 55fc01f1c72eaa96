package main

import (
	"github.com/project-sunbird/sunbird-lock-service/cmd"
)

func main() {
	cmd.Execute()
}
