package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/denhub/cmd/denhub-device/app"
)

func main() {
	app.NewApp().Run()
}
