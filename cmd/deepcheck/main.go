// Package main provides the deepcheck CLI.
//
// Usage:
//
//	deepcheck scan photo.jpg other.png
//	deepcheck serve
//
// See --help for all available options.
package main

func main() {
	Execute()
}
