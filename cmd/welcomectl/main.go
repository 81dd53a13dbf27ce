package main

import "github.com/keithlinneman/linnemanlabs-welcome/internal/cli"

func main() { cli.Execute() }
