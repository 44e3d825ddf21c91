// Package main provides the entry point for the leadscan CLI.
//
// leadscan pulls foreclosure notices from a county records portal, resolves
// each property's owner from the tax assessor and finds contact details for
// that owner on a people-search site.
//
// Usage:
//
//	leadscan run --from 2024-03-01 --to 2024-03-07
//	leadscan history
//
// See --help for all available options.
package main

func main() {
	Execute()
}
