package main

import "github.com/ValentinKolb/dTransport/cmd"

func main() {
	cmd.Execute()
}
