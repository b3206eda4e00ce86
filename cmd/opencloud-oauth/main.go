package main

import "github.com/jrsteele09/go-opencloud-oauth/cmd/opencloud-oauth/cmd"

func main() {
	cmd.Execute()
}
