// Command bindeps builds and inspects binary class-dependency indexes.
package main

import "github.com/fastmerger/cmd/bindeps/cmd"

func main() {
	cmd.Execute()
}
