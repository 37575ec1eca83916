package main

import "github.com/andresmejia3/backdrop/cmd"

func main() {
	cmd.Execute()
}
