// Package main provides the entry point for the burrow CLI.
//
// burrow discovers burrow and warren manifests published over HTTP(S) or
// on the local filesystem, lists their entries, fetches and verifies
// content, and walks whole manifest trees.
//
// Usage:
//
//	burrow discover https://example.com/docs/
//	burrow list https://example.com/docs/
//	burrow fetch https://example.com/docs/ getting-started
//	burrow traverse --content https://example.com/
//	burrow validate ./.burrow.json
//
// See --help for all available options.
package main

func main() {
	Execute()
}
