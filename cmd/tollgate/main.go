// The tollgate binary is the operator CLI.
package main

import "github.com/akazakov/tollgate/adapter/cli"

func main() {
	cli.Execute()
}
