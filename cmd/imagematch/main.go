package main

import "github.com/vietddude/imagematch/internal/cli"

func main() {
	cli.Execute()
}
