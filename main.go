// mediaproc/main.go
package main

import "mediaproc/cmd"

func main() {
	cmd.Execute()
}
