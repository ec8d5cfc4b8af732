package main

import "github.com/mkn/maiken/cmd/mkn/internal"

func main() {
	internal.Execute()
}
