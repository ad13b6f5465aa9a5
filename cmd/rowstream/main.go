package main

import "github.com/vietddude/rowstream/internal/cli"

func main() {
	cli.Execute()
}
