// Package main is the entry point for the statekit CLI.
package main

func main() {
	Execute()
}
