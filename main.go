package main

import "github.com/vibast-solutions/ms-go-parish-auth/cmd"

func main() {
	cmd.Execute()
}
