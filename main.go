/*
Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

*/
package main

import "github.com/gmofishsauce/picload/cmd"

func main() {
	cmd.Execute()
}
