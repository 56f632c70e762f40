// Copyright © 2024 The rapidls authors

package main

import "github.com/rapidls/rapidls/cmd"

func main() {
	cmd.Execute()
}
