package main

import (
	"github.com/MeKo-Tech/linocr/cmd/linocr/cmd"
)

func main() {
	cmd.Execute()
}
