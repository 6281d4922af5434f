package main

// cmd/server/main.go is the project binary. It runs the pages in app/pages
// through pkg/app, which reads the command from os.Args:
//
//	go run ./cmd/server serve
//	go run ./cmd/server route:list

import (
	"github.com/shashiranjanraj/kashvi-ssr/app/pages"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/app"
)

func main() {
	pages.Register(app.New()).Run()
}
