package main

import "github.com/vibast-solutions/ms-go-permits/cmd"

func main() {
	cmd.Execute()
}
