package main

import (
	"flag"

	"github.com/RonPlusSign/workstream/internal/app"
)

func main() {
	confPath := flag.String("config", ".env", "path to the env configuration file")
	flag.Parse()

	app.InitAndServe(*confPath)
}
