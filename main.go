/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/ledgerlink/accounts/cmd"

func main() {
	cmd.Execute()
}
