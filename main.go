package main

import "github.com/gossipring/cassandra/cmd"

func main() {
	cmd.Execute()
}
