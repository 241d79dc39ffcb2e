package main

import (
	"github.com/autopeer-io/denhub/cmd/denhub-device-generator/app"
)

func main() {
	app.NewApp().Run()
}
